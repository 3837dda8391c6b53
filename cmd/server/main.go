package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xmh1011/go-multiraft/config"
	"github.com/xmh1011/go-multiraft/storage"
	"github.com/xmh1011/go-multiraft/transport"
)

// flags 保存命令行参数，只有显式设置的参数才会覆盖配置文件。
type flags struct {
	configPath    string
	address       string
	lanes         int
	bootstrap     bool
	dataDir       string
	storageType   string
	transportType string
	compression   string
	adminAddr     string
}

var opts flags

func main() {
	var rootCmd = &cobra.Command{
		Use:   "raft-server",
		Short: "A multi-lane Raft server",
		RunE:  runServer,
	}

	f := rootCmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Path to the YAML config file")
	f.StringVar(&opts.address, "addr", "127.0.0.1:8001", "Listen address, also used as the node ID")
	f.IntVar(&opts.lanes, "lanes", 1, "Number of lanes to host")
	f.BoolVar(&opts.bootstrap, "bootstrap", false, "Bootstrap every empty lane with this node as the only member")
	f.StringVar(&opts.dataDir, "data", "raft-data", "Directory to store raft data")
	f.StringVar(&opts.storageType, "storage", storage.InmemoryStorage, "Storage type: inmemory, simplefile or bolt")
	f.StringVar(&opts.transportType, "transport", transport.GrpcTransport, "Transport type: tcp, grpc")
	f.StringVar(&opts.compression, "compression", "", "gRPC compression: zstd or empty")
	f.StringVar(&opts.adminAddr, "admin", "127.0.0.1:9001", "Admin HTTP listen address, empty disables it")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	srv, err := NewServer(cfg)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		srv.Stop()
		return err
	}

	waitForSignal(srv)
	return nil
}

// applyFlags 用显式设置的命令行参数覆盖配置。
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Node.Address = opts.address
	}
	if changed("lanes") {
		cfg.Node.Lanes = opts.lanes
	}
	if changed("bootstrap") {
		cfg.Node.Bootstrap = opts.bootstrap
	}
	if changed("data") {
		cfg.Storage.DataDir = opts.dataDir
	}
	if changed("storage") {
		cfg.Storage.Type = opts.storageType
	}
	if changed("transport") {
		cfg.Transport.Type = opts.transportType
	}
	if changed("compression") {
		cfg.Transport.Compression = opts.compression
	}
	if changed("admin") {
		cfg.Admin.Addr = opts.adminAddr
	}
}

func waitForSignal(srv *Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received %s", sig)
	srv.Stop()
}
