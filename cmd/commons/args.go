package commons

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/devcache/devcache/commons"
)

func SetCommonFlags(command *cobra.Command) {
	command.Flags().BoolP("version", "v", false, "Print version")
	command.Flags().BoolP("help", "h", false, "Print help")
	command.Flags().BoolP("debug", "d", false, "Enable debug mode")
	command.Flags().BoolP("profile", "", false, "Enable profiling")

	command.Flags().StringP("config", "", "", "Set config file (yaml)")
	command.Flags().StringP("cache_root", "", commons.GetDefaultCacheRootPath(), "Set cache root path")
	command.Flags().StringP("log_path", "", "", "Set log file path")

	command.Flags().IntP("profile_port", "", commons.ProfileServicePortDefault, "Set profile service port")
	command.Flags().IntP("prometheus_exporter_port", "", commons.PrometheusExporterPortDefault, "Set prometheus exporter port")
}

func ProcessCommonFlags(command *cobra.Command) (*commons.Config, io.WriteCloser, bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "commons",
		"function": "ProcessCommonFlags",
	})

	debug := false
	debugFlag := command.Flags().Lookup("debug")
	if debugFlag != nil {
		debugMode, err := strconv.ParseBool(debugFlag.Value.String())
		if err != nil {
			debug = false
		}

		debug = debugMode
	}

	profile := false
	profileFlag := command.Flags().Lookup("profile")
	if profileFlag != nil {
		profileMode, err := strconv.ParseBool(profileFlag.Value.String())
		if err != nil {
			profile = false
		}

		profile = profileMode
	}

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	helpFlag := command.Flags().Lookup("help")
	if helpFlag != nil {
		help, err := strconv.ParseBool(helpFlag.Value.String())
		if err != nil {
			help = false
		}

		if help {
			command.Usage()
			return nil, nil, false, nil // stop here
		}
	}

	versionFlag := command.Flags().Lookup("version")
	if versionFlag != nil {
		version, err := strconv.ParseBool(versionFlag.Value.String())
		if err != nil {
			version = false
		}

		if version {
			printVersion()
			return nil, nil, false, nil // stop here
		}
	}

	var config *commons.Config

	configFlag := command.Flags().Lookup("config")
	if configFlag != nil && len(configFlag.Value.String()) > 0 {
		configPath := configFlag.Value.String()

		yamlBytes, err := os.ReadFile(configPath)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		serverConfig, err := commons.NewConfigFromYAML(yamlBytes)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		config = serverConfig
	} else {
		envConfig, err := commons.NewConfigFromEnv()
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		config = envConfig
	}

	// prioritize command-line flags
	if debug {
		config.Debug = true
	}

	if profile {
		config.Profile = true
	}

	cacheRootFlag := command.Flags().Lookup("cache_root")
	if cacheRootFlag != nil && cacheRootFlag.Changed {
		config.Cache.BaseDir = cacheRootFlag.Value.String()
	}

	logPathFlag := command.Flags().Lookup("log_path")
	if logPathFlag != nil && len(logPathFlag.Value.String()) > 0 {
		config.LogPath = logPathFlag.Value.String()
	}

	profilePortFlag := command.Flags().Lookup("profile_port")
	if profilePortFlag != nil && profilePortFlag.Changed {
		profilePort, err := strconv.ParseInt(profilePortFlag.Value.String(), 10, 32)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		config.ProfileServicePort = int(profilePort)
	}

	prometheusPortFlag := command.Flags().Lookup("prometheus_exporter_port")
	if prometheusPortFlag != nil && prometheusPortFlag.Changed {
		prometheusPort, err := strconv.ParseInt(prometheusPortFlag.Value.String(), 10, 32)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		config.PrometheusExporterPort = int(prometheusPort)
	}

	var logWriter io.WriteCloser
	logFilePath := config.LogPath
	if len(logFilePath) > 0 {
		logWriter = getLogWriter(logFilePath)

		// use multi output - to output to file and stdout
		mw := io.MultiWriter(os.Stdout, logWriter)
		log.SetOutput(mw)

		logger.Infof("Logging to %s", logFilePath)
	}

	return config, logWriter, true, nil // continue
}

func getLogWriter(logPath string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // 50MB
		MaxBackups: 5,
		MaxAge:     30, // 30 days
		Compress:   false,
	}
}

func printVersion() error {
	info := commons.GetVersionString()
	fmt.Println(info)
	return nil
}
