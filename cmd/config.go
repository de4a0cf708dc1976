package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/secrets"
	"github.com/CosmoTheDev/procwatch/models"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage the procwatch configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with one example tenant",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the path of the config file in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath(cfgFile)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configEncryptCmd = &cobra.Command{
	Use:   "encrypt <value>",
	Short: "Encrypt a credential for use in the config file",
	Long: `Encrypts a value under the master key from ` + secrets.MasterKeyEnv + ` and
prints the tagged form to paste into a password field of the config file.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigEncrypt,
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd, configEncryptCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigPath(cfgFile)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("building default config: %w", err)
	}
	cfg.Tenants = []config.TenantConfig{{
		ID:   1,
		Code: "example",
		Name: "Example Tenant",
		Environments: []config.EnvironmentConfig{{
			Environment: models.EnvDevelopment,
			Host:        "localhost",
			Port:        3306,
			Database:    "example_dev",
			User:        "procwatch",
			Password:    "change-me",
		}},
	}}

	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Println(successStyle.Render("Config written to " + path))
	fmt.Println(dimStyle.Render("Edit the tenants section, then run 'procwatch scan'."))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	masked := *cfg
	masked.Tenants = make([]config.TenantConfig, len(cfg.Tenants))
	copy(masked.Tenants, cfg.Tenants)
	for i := range masked.Tenants {
		envs := make([]config.EnvironmentConfig, len(masked.Tenants[i].Environments))
		copy(envs, masked.Tenants[i].Environments)
		for j := range envs {
			if envs[j].Password != "" {
				envs[j].Password = "********"
			}
		}
		masked.Tenants[i].Environments = envs
	}
	if masked.Notify.Email.Password != "" {
		masked.Notify.Email.Password = "********"
	}
	if masked.Notify.Webhook.Secret != "" {
		masked.Notify.Webhook.Secret = "********"
	}

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return err
	}
	path, _ := config.ConfigPath(cfgFile)
	fmt.Println(dimStyle.Render("# " + path))
	fmt.Println(string(data))
	return nil
}

func runConfigEncrypt(cmd *cobra.Command, args []string) error {
	sealed, err := secrets.Encrypt(args[0])
	if err != nil {
		return err
	}
	fmt.Println(sealed)
	return nil
}
