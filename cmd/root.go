/*
Package cmd implements the command-line interface for the Longbow memory
store client. It provides commands for adding, searching, listing and
linking memories in a remote Longbow vector store.
*/
package cmd

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theapemachine/longbow-go/pkg/logging"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the tool,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

/*
rootCmd represents the base command when called without any subcommands
*/
var (
	projectName = "longbow-go"
	cfgFile     string

	rootCmd = &cobra.Command{
		Use:   "longbow-go",
		Short: "Client for the Longbow vector memory store",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the CLI. It initializes the root command
and executes it.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)
}

/*
initConfig writes the default config file to the user's home directory if it
doesn't exist, then reads the config from there. Environment variables for
the Longbow endpoints override the file.
*/
func initConfig() {
	var err error

	if err = writeConfig(); err != nil {
		log.Fatal(err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	// Add user config directory (~/.longbow-go)
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(home + "/." + projectName)

	if err = viper.ReadInConfig(); err != nil {
		log.Fatal(err)
		return
	}

	if uri := os.Getenv("LONGBOW_DATA_URI"); uri != "" {
		viper.Set("longbow.data_uri", uri)
	}
	if uri := os.Getenv("LONGBOW_META_URI"); uri != "" {
		viper.Set("longbow.meta_uri", uri)
	}

	logging.Init(viper.GetString("log.level"))
}

/*
writeConfig seeds the user's config directory from the embedded defaults.
An existing config file is left untouched so local edits survive upgrades.
*/
func writeConfig() (err error) {
	home, _ := os.UserHomeDir()
	configDir := home + "/." + projectName

	if !CheckFileExists(configDir) {
		if err = os.MkdirAll(configDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	fullPath := configDir + "/" + cfgFile
	if CheckFileExists(fullPath) {
		return nil
	}

	var defaults []byte
	if defaults, err = fs.ReadFile(embedded, "cfg/"+cfgFile); err != nil {
		return fmt.Errorf("failed to read embedded config file: %w", err)
	}

	if err = os.WriteFile(fullPath, defaults, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Println("wrote config file to", fullPath)
	return nil
}

/*
CheckFileExists reports whether the given path exists.
*/
func CheckFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

/*
longRoot contains the detailed help text for the root command.
*/
var longRoot = `
longbow-go is a Go client for the Longbow distributed vector store. It embeds
free-text memories, persists them remotely, and retrieves them by vector
similarity, hybrid text+vector scoring, metadata filters and graph traversal.
`
