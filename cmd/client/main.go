package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xmh1011/go-multiraft/client"
	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/transport"
)

var (
	serversStr    string
	transportType string
	compression   string
	lane          uint32
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "raft-client",
		Short: "A client for the multi-lane Raft cluster",
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serversStr, "servers", "127.0.0.1:8001,127.0.0.1:8002,127.0.0.1:8003", "Comma-separated list of server addresses")
	pf.StringVar(&transportType, "transport", transport.GrpcTransport, "Transport type: tcp, grpc")
	pf.StringVar(&compression, "compression", "", "gRPC compression: zstd or empty")
	pf.Uint32Var(&lane, "lane", 0, "Lane to operate on")

	rootCmd.AddCommand(
		writeCmd(),
		readCmd(),
		membershipCmd("add-server", "Add a server to the lane", (*client.Client).AddServer),
		membershipCmd("remove-server", "Remove a server from the lane", (*client.Client).RemoveServer),
		timeoutNowCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// withClient 创建客户端，执行 fn，结束后关闭传输层。
func withClient(fn func(c *client.Client) error) error {
	var servers []param.NodeID
	for _, s := range strings.Split(serversStr, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}

	// 使用端口 0 让系统自动分配一个临时端口，作为客户端的源端口
	trans, err := transport.NewTransport(transportType, "127.0.0.1:0", transport.Options{Compression: compression})
	if err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}
	defer trans.Close()

	c, err := client.NewClient(servers, trans)
	if err != nil {
		return err
	}
	return fn(c)
}

func writeCmd() *cobra.Command {
	var cmd param.KVCommand
	var requestID string
	c := &cobra.Command{
		Use:   "write",
		Short: "Submit a set, delete or fetch_add command",
		RunE: func(_ *cobra.Command, _ []string) error {
			msg, err := json.Marshal(cmd)
			if err != nil {
				return err
			}
			return withClient(func(c *client.Client) error {
				var out []byte
				if requestID != "" {
					out, err = c.WriteWithID(lane, requestID, msg)
				} else {
					out, err = c.Write(lane, msg)
				}
				if err != nil {
					return err
				}
				fmt.Printf("OK %s\n", out)
				return nil
			})
		},
	}
	c.Flags().StringVar(&cmd.Op, "op", param.OpSet, "Operation: set, delete or fetch_add")
	c.Flags().StringVar(&cmd.Key, "key", "foo", "Key to operate on")
	c.Flags().StringVar(&cmd.Value, "value", "", "Value for set")
	c.Flags().Int64Var(&cmd.Delta, "delta", 1, "Delta for fetch_add")
	c.Flags().StringVar(&requestID, "request-id", "", "Reuse an explicit request id instead of generating one")
	return c
}

func readCmd() *cobra.Command {
	var key string
	c := &cobra.Command{
		Use:   "read",
		Short: "Read a key with a linearizable read",
		RunE: func(_ *cobra.Command, _ []string) error {
			msg, err := json.Marshal(param.KVCommand{Op: param.OpGet, Key: key})
			if err != nil {
				return err
			}
			return withClient(func(c *client.Client) error {
				out, err := c.Read(lane, msg)
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", out)
				return nil
			})
		},
	}
	c.Flags().StringVar(&key, "key", "foo", "Key to read")
	return c
}

func membershipCmd(use, short string, call func(*client.Client, param.LaneID, param.NodeID) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <server>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withClient(func(c *client.Client) error {
				if err := call(c, lane, args[0]); err != nil {
					return err
				}
				fmt.Printf("%s %s on lane %d committed\n", use, args[0], lane)
				return nil
			})
		},
	}
}

func timeoutNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeout-now <server>",
		Short: "Ask a server to start an election on the lane immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withClient(func(c *client.Client) error {
				return c.TimeoutNow(lane, args[0])
			})
		},
	}
}
