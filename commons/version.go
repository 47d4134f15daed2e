package commons

import (
	"fmt"

	yaml "gopkg.in/yaml.v2"
)

var (
	serviceVersion string = "v0.1.0"
	gitCommit      string
	buildDate      string
)

// VersionInfo object contains version related info
type VersionInfo struct {
	ServiceVersion string `yaml:"service_version" json:"service_version"`
	GitCommit      string `yaml:"git_commit" json:"git_commit"`
	BuildDate      string `yaml:"build_date" json:"build_date"`
}

// GetVersion returns VersionInfo object
func GetVersion() VersionInfo {
	return VersionInfo{
		ServiceVersion: serviceVersion,
		GitCommit:      gitCommit,
		BuildDate:      buildDate,
	}
}

// GetVersionString returns version in a string
func GetVersionString() string {
	versionInfo := GetVersion()
	yamlBytes, err := yaml.Marshal(&versionInfo)
	if err != nil {
		return fmt.Sprintf("devcache %s", versionInfo.ServiceVersion)
	}

	return string(yamlBytes)
}
