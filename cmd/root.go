/*
Package cmd implements the command-line interface for memoria. It serves
the MCP tools and the admin API, and offers the category and recall
operations directly from the terminal.
*/
package cmd

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theapemachine/memoria/pkg/config"
	"github.com/theapemachine/memoria/pkg/logging"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

var (
	projectName = "memoria"
	cfgFile     string
	logLevel    string

	rootCmd = &cobra.Command{
		Use:   "memoria",
		Short: "Semantic memory for AI assistants",
		Long:  longRoot,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
		SilenceUsage: true,
	}
)

/*
Execute is the main entry point for the memoria CLI.
*/
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)

	rootCmd.PersistentFlags().StringVar(
		&logLevel,
		"log-level",
		"",
		"log level, overrides log.level from the config",
	)
}

/*
initConfig writes the default config file to the user's home directory if
it doesn't exist, reads it, and points logging at the configured file.
*/
func initConfig(cmd *cobra.Command) error {
	if err := writeConfig(); err != nil {
		return err
	}

	configDir, err := configDirectory()

	if err != nil {
		return err
	}

	viper.SetConfigName(strings.TrimSuffix(filepath.Base(cfgFile), filepath.Ext(cfgFile)))
	viper.SetConfigType("yml")
	viper.AddConfigPath(configDir)
	viper.SetEnvPrefix("MEMORIA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	level := viper.GetString("log.level")

	if logLevel != "" {
		level = logLevel
	}

	logFile := ""

	// Only the stdio server has to keep stdout clean; interactive commands
	// log to stderr.
	if cmd.Name() == "mcp" {
		logFile = config.ExpandHome(viper.GetString("log.file"))
	}

	return logging.Init(logFile, level)
}

func configDirectory() (string, error) {
	home, err := os.UserHomeDir()

	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}

	return filepath.Join(home, "."+projectName), nil
}

/*
writeConfig writes the embedded default config to the config directory
unless a file is already there.
*/
func writeConfig() (err error) {
	var (
		fh  fs.File
		buf bytes.Buffer
	)

	configDir, err := configDirectory()

	if err != nil {
		return err
	}

	if !CheckFileExists(configDir) {
		if err = os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	fullPath := filepath.Join(configDir, filepath.Base(cfgFile))

	if CheckFileExists(fullPath) {
		return nil
	}

	if fh, err = embedded.Open("cfg/config.yml"); err != nil {
		return fmt.Errorf("failed to open embedded config file: %w", err)
	}

	defer fh.Close()

	if _, err = io.Copy(&buf, fh); err != nil {
		return fmt.Errorf("failed to read embedded config file: %w", err)
	}

	if err = os.WriteFile(fullPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info("wrote config file", "path", fullPath)

	return nil
}

func CheckFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

/*
longRoot contains the detailed help text for the root command.
*/
var longRoot = `
memoria stores free-text memories for an AI assistant and recalls them by
relevance: semantic similarity, age, importance and how often they were used.
Memories are filed under a category taxonomy that you can edit while the
assistant is running.
`
