package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/hubertat/servicemaker"
	"github.com/spf13/cobra"
)

const serviceName = "gpio-monitor"

var monitorService = servicemaker.ServiceMaker{
	User:               "gpio-monitor",
	UserGroups:         []string{"gpio"},
	ServicePath:        "/etc/systemd/system/gpio-monitor.service",
	ServiceDescription: "GPIO Monitor: debounced Raspberry Pi pin monitoring with REST API and dashboard",
	ExecDir:            "/srv/gpio-monitor",
	ExecName:           "gpio-monitor",
}

// installCmd installs the daemon as a systemd service.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install as a systemd service",
	Long: `Install gpio-monitor as a systemd service.

Creates a dedicated user in the gpio group, copies the binary to
/srv/gpio-monitor, and writes a unit file to /etc/systemd/system.
Requires root.

After installing:
  gpio-monitor start`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := monitorService.InstallService(); err != nil {
			return fmt.Errorf("failed to install service: %w", err)
		}
		fmt.Println("Service installed")
		return nil
	},
}

func systemctl(action string) error {
	c := exec.Command("systemctl", action, serviceName)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("systemctl %s failed: %w", action, err)
	}
	return nil
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitor service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := systemctl("start"); err != nil {
			return err
		}
		fmt.Println("Service started")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the monitor service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := systemctl("stop"); err != nil {
			return err
		}
		fmt.Println("Service stopped")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the monitor service",
	Long: `Restart the monitor service.

Needed to apply a pending port change made with set-port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := systemctl("restart"); err != nil {
			return err
		}
		fmt.Println("Service restarted")
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent service logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := exec.Command("journalctl", "-u", serviceName, "-n", "50", "--no-pager")
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("journalctl failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd, startCmd, stopCmd, restartCmd, logsCmd)
}
