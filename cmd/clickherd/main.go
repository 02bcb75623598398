package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"clickherd/deployment"
	"clickherd/keeperclient"
	"clickherd/topology"
)

var rootCmd = &cobra.Command{
	Use:   "clickherd",
	Short: "Provision and reconfigure a local clickhouse test cluster",
	Long: `clickherd manages a local, loopback-only clickhouse test cluster:
a keeper ensemble plus a set of server replicas. It generates per-node XML
configuration from a single persisted topology and starts or stops node
processes in an order that keeps every node's view of the cluster in sync.`,
	SilenceUsage: true,
}

func init() {
	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("path", ".", "root path of the deployment")
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.String("clickhouse-binary", "clickhouse", "the clickhouse executable to launch nodes with")
	configFlags.Uint16("keeper-port", 0, "override the keeper client base port")
	configFlags.Uint16("raft-port", 0, "override the keeper raft base port")
	configFlags.Uint16("tcp-port", 0, "override the server tcp base port")
	configFlags.Uint16("http-port", 0, "override the server http base port")
	configFlags.Uint16("interserver-port", 0, "override the interserver http base port")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("clickherd")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)

	rootCmd.AddCommand(genConfigCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(addKeeperCmd)
	rootCmd.AddCommand(removeKeeperCmd)
	rootCmd.AddCommand(addServerCmd)
	rootCmd.AddCommand(removeServerCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(keeperConfigCmd)
	rootCmd.AddCommand(watchCmd)

	genConfigCmd.Flags().Uint64("num-keepers", 0, "number of clickhouse keepers")
	genConfigCmd.Flags().Uint64("num-replicas", 0, "number of clickhouse replicas")
	_ = genConfigCmd.MarkFlagRequired("num-keepers")
	_ = genConfigCmd.MarkFlagRequired("num-replicas")
}

func getLogger() *zap.Logger {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(logConfig)
	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), logLevel)
	logger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))

	parsedLogLevel, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		logger.Warn("invalid log level specified, using INFO instead")
		parsedLogLevel = zapcore.InfoLevel
	}
	logLevel.SetLevel(parsedLogLevel)

	return logger
}

func basePorts() topology.BasePorts {
	ports := topology.DefaultBasePorts()
	if p := viper.GetUint16("keeper-port"); p != 0 {
		ports.Keeper = p
	}
	if p := viper.GetUint16("raft-port"); p != 0 {
		ports.Raft = p
	}
	if p := viper.GetUint16("tcp-port"); p != 0 {
		ports.TCP = p
	}
	if p := viper.GetUint16("http-port"); p != 0 {
		ports.HTTP = p
	}
	if p := viper.GetUint16("interserver-port"); p != 0 {
		ports.InterserverHTTP = p
	}
	return ports
}

func newDeployment(logger *zap.Logger) *deployment.Deployment {
	return deployment.New(&deployment.Options{
		Logger:    logger.Named("deployment"),
		Path:      viper.GetString("path"),
		BasePorts: basePorts(),
		Binary:    viper.GetString("clickhouse-binary"),
	})
}

func parseNodeID(arg string) (topology.NodeID, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", arg)
	}
	return topology.NodeID(id), nil
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Generate configuration for a fresh keeper and clickhouse cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		numKeepers, _ := cmd.Flags().GetUint64("num-keepers")
		numReplicas, _ := cmd.Flags().GetUint64("num-replicas")

		logger := getLogger()
		d := newDeployment(logger)

		if err := d.Genesis(numKeepers, numReplicas); err != nil {
			return err
		}

		logger.Info("generated cluster configuration",
			zap.Uint64("keepers", numKeepers),
			zap.Uint64("replicas", numReplicas),
			zap.String("dir", d.Dir()))
		return nil
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Launch every node of a generated deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newDeployment(getLogger()).Deploy()
	},
}

var addKeeperCmd = &cobra.Command{
	Use:   "add-keeper",
	Short: "Add a keeper to the ensemble and start it",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		id, err := newDeployment(logger).AddKeeper()
		if err != nil {
			return err
		}
		logger.Info("keeper added", zap.Uint64("id", uint64(id)))
		return nil
	},
}

var removeKeeperCmd = &cobra.Command{
	Use:   "remove-keeper <id>",
	Short: "Remove a keeper from the ensemble and stop it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		return newDeployment(getLogger()).RemoveKeeper(id)
	},
}

var addServerCmd = &cobra.Command{
	Use:   "add-server",
	Short: "Add a clickhouse server replica and start it",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		id, err := newDeployment(logger).AddServer()
		if err != nil {
			return err
		}
		logger.Info("clickhouse server added", zap.Uint64("id", uint64(id)))
		return nil
	},
}

var removeServerCmd = &cobra.Command{
	Use:   "remove-server <id>",
	Short: "Remove a clickhouse server replica and stop it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		return newDeployment(getLogger()).RemoveServer(id)
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted cluster topology",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newDeployment(getLogger()).Show()
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var keeperConfigCmd = &cobra.Command{
	Use:   "keeper-config <id>",
	Short: "Print the ensemble membership a running keeper has converged to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNodeID(args[0])
		if err != nil {
			return err
		}

		logger := getLogger()
		client := &keeperclient.Client{
			Binary: viper.GetString("clickhouse-binary"),
			Port:   topology.Port(basePorts().Keeper, id),
			Logger: logger.Named("keeperclient"),
		}

		out, err := client.FetchConfig(30 * time.Second)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate node configs whenever the metadata file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()

		ctx, cancel := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		w := &deployment.Watcher{
			Deployment: newDeployment(logger),
			Logger:     logger.Named("watcher"),
		}

		err := w.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
