// Command rtxpd wires the Replaceable Transaction Publisher and
// Mempool Transaction Monitor against a live Bitcoin-Core-compatible
// node. It is bootstrap only: flag parsing, config loading and
// collaborator wiring, in the same shape as the teacher's cmd/kcn
// (cli.NewApp + a single Action). The pre-publisher, time-lock monitor
// and funder collaborators are supplied by the embedding application;
// this binary is a reference wiring, not a complete channel node.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/chainforge/rtxp/chainclient"
	"github.com/chainforge/rtxp/eventbus"
	"github.com/chainforge/rtxp/internal/logx"
	"github.com/chainforge/rtxp/rtxp"
)

var logger = logx.NewModuleLogger(logx.ConfigMod)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a rtxpd TOML config file",
	}
	rpcHostFlag = cli.StringFlag{
		Name:  "rpc.host",
		Usage: "Bitcoin Core RPC host:port",
		Value: "127.0.0.1:8332",
	}
	rpcUserFlag = cli.StringFlag{
		Name:  "rpc.user",
		Usage: "Bitcoin Core RPC username",
	}
	rpcPassFlag = cli.StringFlag{
		Name:  "rpc.pass",
		Usage: "Bitcoin Core RPC password",
	}
	kafkaBrokersFlag = cli.StringSliceFlag{
		Name:  "kafka.brokers",
		Usage: "Kafka brokers for the audit event sink (omit to disable)",
	}
	kafkaTopicFlag = cli.StringFlag{
		Name:  "kafka.topic",
		Usage: "Kafka topic for published/confirmed events",
		Value: "rtxp-events",
	}
	pollIntervalFlag = cli.DurationFlag{
		Name:  "poll-interval",
		Usage: "block-height poll interval",
		Value: 10 * time.Second,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "rtxpd"
	app.Usage = "Replaceable Transaction Publisher / Mempool Transaction Monitor bootstrap"
	app.Flags = []cli.Flag{configFlag, rpcHostFlag, rpcUserFlag, rpcPassFlag, kafkaBrokersFlag, kafkaTopicFlag, pollIntervalFlag}
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg := rtxp.DefaultConfig
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := rtxp.LoadConfigTOML(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	chain, err := chainclient.NewBitcoindClient(&rpcclient.ConnConfig{
		Host: ctx.String(rpcHostFlag.Name),
		User: ctx.String(rpcUserFlag.Name),
		Pass: ctx.String(rpcPassFlag.Name),
	})
	if err != nil {
		return fmt.Errorf("dial bitcoind: %w", err)
	}
	defer chain.Shutdown()

	blocks := chainclient.NewPollingBlockHeightSource(chain, ctx.Duration(pollIntervalFlag.Name))
	blocks.Start(context.Background())
	defer blocks.Stop()

	sink, err := buildEventSink(ctx)
	if err != nil {
		return err
	}

	logger.Info("rtxpd collaborators wired",
		"rpc_host", ctx.String(rpcHostFlag.Name),
		"min_depth_blocks", cfg.MinDepthBlocks,
		"bump_ratio", cfg.BumpRatio,
	)

	// rtxp.Deps.Chain/FeeEstimator are both satisfied by *chain; the
	// pre-publisher, time-lock monitor and funder are supplied by the
	// embedding channel application and are intentionally absent here.
	// reference only: this binary wires collaborators but never calls
	// rtxp.NewPublisher itself.
	_ = rtxp.Deps{
		Chain:        chain,
		FeeEstimator: chain,
		Blocks:       blocks,
		Sink:         sink,
	}

	logger.Info("rtxpd ready; waiting for Publish commands from an embedding application")
	select {}
}

func buildEventSink(ctx *cli.Context) (eventbus.EventSink, error) {
	feedSink := eventbus.NewFeedSink()

	brokers := ctx.StringSlice(kafkaBrokersFlag.Name)
	if len(brokers) == 0 {
		return feedSink, nil
	}

	kafkaSink, err := eventbus.NewKafkaSink(eventbus.KafkaSinkConfig{
		Brokers: brokers,
		Topic:   ctx.String(kafkaTopicFlag.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("start kafka sink: %w", err)
	}
	return eventbus.MultiSink{feedSink, kafkaSink}, nil
}
