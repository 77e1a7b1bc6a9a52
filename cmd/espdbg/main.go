package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.bug.st/serial"

	"github.com/esp-rs/esp-serial-dbg/internal/chip"
	"github.com/esp-rs/esp-serial-dbg/internal/cli"
	"github.com/esp-rs/esp-serial-dbg/internal/gdbserver"
	"github.com/esp-rs/esp-serial-dbg/internal/hostconn"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "espdbg",
		Short: "Serial-line GDB bridge for ESP32-family microcontrollers",
	}

	root.PersistentFlags().Int("baud", 115200, "serial baud rate")
	root.PersistentFlags().String("log-level", "info", "debug, info, warn, error")
	root.PersistentFlags().String("log-file", "", "additionally log to this file")
	root.PersistentFlags().String("config", "", "path to config file (default .espdbg.yaml)")

	viper.SetEnvPrefix("ESPDBG")
	viper.AutomaticEnv()
	viper.BindPFlag("baud", root.PersistentFlags().Lookup("baud"))
	viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-file", root.PersistentFlags().Lookup("log-file"))

	cobra.OnInitialize(func() {
		if cfg, _ := root.PersistentFlags().GetString("config"); cfg != "" {
			viper.SetConfigFile(cfg)
		} else {
			viper.SetConfigName(".espdbg")
			viper.SetConfigType("yaml")
			viper.AddConfigPath(".")
			viper.AddConfigPath("$HOME")
		}
		_ = viper.ReadInConfig()
	})

	root.AddCommand(newCLICmd(), newGDBCmd(), newPortsCmd())
	return root
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.GetPortsList()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func newCLICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cli <chip> [port]",
		Short: "Interactive serial debugging CLI",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := connect(args)
			if err != nil {
				return err
			}
			defer conn.Shutdown()
			return cli.Run(conn, os.Stdout)
		},
	}
}

func newGDBCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "gdb <chip> [port]",
		Short: "GDB Remote Serial Protocol server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			conn, targetChip, err := connect(args)
			if err != nil {
				return err
			}
			defer conn.Shutdown()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger, err := newLogger(viper.GetString("log-level"), viper.GetString("log-file"))
			if err != nil {
				return err
			}
			return gdbserver.Run(ctx, conn, targetChip, addr, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "127.0.0.1:9001", "GDB server listen address")
	return cmd
}

// connect opens the serial port named in args (or auto-detects the sole
// available port, mirroring the teacher's single-port special case),
// performs the HELLO handshake, and returns a ready hostconn.Connection.
func connect(args []string) (*hostconn.Connection, chip.Chip, error) {
	c, err := chip.Parse(args[0])
	if err != nil {
		return nil, 0, err
	}

	portName := ""
	if len(args) == 2 {
		portName = args[1]
	} else {
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, 0, err
		}
		if len(ports) != 1 {
			return nil, 0, fmt.Errorf("espdbg: %d serial ports found, specify one explicitly", len(ports))
		}
		portName = ports[0]
	}

	baud := viper.GetInt("baud")
	if baud == 0 {
		baud = 115200
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, 0, fmt.Errorf("espdbg: open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		return nil, 0, err
	}

	logger, err := newLogger(viper.GetString("log-level"), viper.GetString("log-file"))
	if err != nil {
		return nil, 0, err
	}

	conn := hostconn.New(port, logger)
	conn.Start(func(b byte) { os.Stdout.Write([]byte{b}) })

	if _, _, err := conn.Hello(2 * time.Second); err != nil {
		conn.Shutdown()
		return nil, 0, fmt.Errorf("espdbg: hello handshake: %w", err)
	}

	return conn, c, nil
}
