package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	cmd_commons "github.com/devcache/devcache/cmd/commons"
	"github.com/devcache/devcache/commons"
	"github.com/devcache/devcache/service"
	log "github.com/sirupsen/logrus"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devcache [args..]",
	Short: "Run devcache Service",
	Long:  "Run devcache Service that memoizes expensive CLI results across invocations.",
	RunE:  processCommand,
}

func Execute() error {
	return rootCmd.Execute()
}

func processCommand(command *cobra.Command, args []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "processCommand",
	})

	config, logWriter, cont, err := cmd_commons.ProcessCommonFlags(command)
	if logWriter != nil {
		defer logWriter.Close()
	}

	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}

	if !cont {
		os.Exit(0)
	}

	err = run(config)
	if err != nil {
		logger.WithError(err).Error("failed to run devcache Service")
		os.Exit(1)
	}

	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000000",
		FullTimestamp:   true,
	})

	log.SetLevel(log.InfoLevel)

	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "main",
	})

	// attach common flags
	cmd_commons.SetCommonFlags(rootCmd)

	err := Execute()
	if err != nil {
		logger.Fatal(err)
		os.Exit(1)
	}
}

// run runs devcache Service
func run(config *commons.Config) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "run",
	})

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	versionInfo := commons.GetVersion()
	logger.Infof("devcache Service version - %s, commit - %s", versionInfo.ServiceVersion, versionInfo.GitCommit)

	// make work dirs required
	err := config.MakeWorkDirs()
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return err
	}

	err = config.Validate()
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return err
	}

	// profile
	if config.Profile && config.ProfileServicePort > 0 {
		go func() {
			profileServiceAddr := fmt.Sprintf(":%d", config.ProfileServicePort)

			logger.Infof("Starting profile service at %s", profileServiceAddr)
			http.ListenAndServe(profileServiceAddr, nil)
		}()

		prof := profile.Start(profile.MemProfile)
		defer prof.Stop()
	}

	var prometheusExporterServer *http.Server
	if config.PrometheusExporterPort > 0 {
		go func() {
			prometheusExporterAddr := fmt.Sprintf(":%d", config.PrometheusExporterPort)
			http.Handle("/metrics", promhttp.Handler())

			logger.Infof("Starting prometheus exporter at %s", prometheusExporterAddr)
			prometheusExporterServer = &http.Server{Addr: prometheusExporterAddr, Handler: nil}
			prometheusExporterServer.ListenAndServe()
		}()
	}

	// run a service
	svc, err := service.NewCacheService(config)
	if err != nil {
		logger.WithError(err).Error("failed to create the service")
		return err
	}

	err = svc.Start()
	if err != nil {
		logger.WithError(err).Error("failed to start the service")
		return err
	}

	defer func() {
		if prometheusExporterServer != nil {
			prometheusExporterServer.Shutdown(context.TODO())
		}

		svc.Stop()
		svc.Release()
	}()

	// wait
	waitForSignal()

	return nil
}

// waitForSignal waits for SIGINT or SIGTERM
func waitForSignal() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh
}
