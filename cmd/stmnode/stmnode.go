/*
github.com/tcrain/stm - Stake-based threshold multisignature certificates.
Copyright (C) 2020 The project authors - tcrain

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

*/

/*
stmnode runs the aggregator against a simulated ledger and inspects the resulting certificate chain.

	stmnode --config node.toml simulate --certificates 10
	stmnode --config node.toml verify-chain
	stmnode keygen --id party1 --seed 0a0b
*/
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/urfave/cli.v1"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/aggregator"
	"github.com/tcrain/stm/stm/certificate"
	"github.com/tcrain/stm/stm/logging"
	"github.com/tcrain/stm/stm/simulation"
	"github.com/tcrain/stm/stm/stats"
	"github.com/tcrain/stm/stm/storage"
	"github.com/tcrain/stm/stm/types"
)

const (
	certFileName   = "certificates.dat"
	roundsFileName = "rounds.db"
)

func main() {
	app := cli.NewApp()
	app.Name = "stmnode"
	app.Usage = "stake-based threshold multisignature certificates"
	app.Version = config.ProtocolVersion
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "path to the toml node `FILE`"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "keygen",
			Usage:  "generate the key of a party and print its verification key with its proof of possession",
			Action: keygen,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "id", Usage: "party id"},
				cli.StringFlag{Name: "seed", Usage: "hex seed, the id is used if empty"},
			},
		},
		{
			Name:   "simulate",
			Usage:  "issue certificates with the parties of the config",
			Action: simulate,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "certificates, n", Value: 10, Usage: "certificates to issue after the genesis one"},
				cli.StringFlag{Name: "metrics", Usage: "serve prometheus metrics on `ADDR`, overrides metrics_addr"},
			},
		},
		{
			Name:   "verify-chain",
			Usage:  "check every certificate of the stored chain",
			Action: verifyChain,
		},
	}
	if err := app.Run(os.Args); err != nil {
		logging.Error(err)
		logging.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Sync()
}

// loadConfig reads the config file of the global flag and sets up the logging.
func loadConfig(c *cli.Context) (config.NodeConfig, error) {
	cfg := config.DefaultNodeConfig()
	if path := c.GlobalString("config"); path != "" {
		var err error
		if cfg, err = config.LoadNodeConfig(path); err != nil {
			return cfg, err
		}
	}
	lvl, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return cfg, err
	}
	lt, err := config.ParseLogFormat(cfg.LogFormat)
	if err != nil {
		return cfg, err
	}
	config.LoggingType, config.LoggingFmtLevel = lt, lvl
	logging.Setup(lt, lvl)
	return cfg, nil
}

func genesisSigner(cfg config.NodeConfig) (*certificate.GenesisSigner, error) {
	if cfg.GenesisSeed == "" {
		logging.Warning("no genesis_seed in the config, using the test seed")
		return certificate.NewSeededGenesisSigner(config.InitRandBytes[:]), nil
	}
	seed, err := hex.DecodeString(cfg.GenesisSeed)
	if err != nil {
		return nil, fmt.Errorf("genesis_seed: %w", err)
	}
	return certificate.NewSeededGenesisSigner(seed), nil
}

func keygen(c *cli.Context) error {
	if _, err := loadConfig(c); err != nil {
		return err
	}
	id := c.String("id")
	if id == "" {
		return fmt.Errorf("%w: --id is required", types.ErrInvalidPartyID)
	}
	seed := []byte(id)
	if s := c.String("seed"); s != "" {
		var err error
		if seed, err = hex.DecodeString(s); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	signer, err := simulation.NewSigner(types.PartyID(id), 1, seed)
	if err != nil {
		return err
	}
	buff, err := signer.VKPoP.MarshalBinary()
	if err != nil {
		return err
	}
	fmt.Printf("%v %v\n", id, hex.EncodeToString(buff))
	return nil
}

func simulate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if len(cfg.Parties) == 0 {
		return fmt.Errorf("%w: the config has no parties", types.ErrEmptyRegistry)
	}
	signers, err := simulation.SignersFromConfig(cfg.Parties)
	if err != nil {
		return err
	}
	gs, err := genesisSigner(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.StoreDir, 0755); err != nil {
		return err
	}
	store, err := storage.OpenDiskCertificateStore(filepath.Join(cfg.StoreDir, certFileName), cfg.UseSnappy, cfg.BufferSize)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error("closing certificate store: ", err)
		}
	}()
	rounds, err := storage.OpenBoltStore(filepath.Join(cfg.StoreDir, roundsFileName))
	if err != nil {
		return err
	}
	defer func() {
		if err := rounds.Close(); err != nil {
			logging.Error("closing round store: ", err)
		}
	}()

	reg := prometheus.NewRegistry()
	metrics, err := stats.NewMetrics(reg)
	if err != nil {
		return err
	}
	addr := cfg.MetricsAddr
	if c.IsSet("metrics") {
		addr = c.String("metrics")
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server: ", err)
			}
		}()
		defer srv.Close()
		logging.Infof("serving metrics on %v", addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := simulation.Run(ctx, simulation.Config{
		Runtime: aggregator.Config{
			Params:        types.ParamsFromConfig(cfg.Params),
			RoundTimeout:  cfg.RoundTimeout.Duration,
			CycleInterval: cfg.CycleInterval.Duration,
			CacheSize:     cfg.CacheSize,
			Stats:         metrics,
			Store:         store,
			Rounds:        rounds,
			Genesis:       gs,
		},
		Network:      cfg.Network,
		Certificates: c.Int("certificates"),
		Signers:      signers,
	})
	if res != nil {
		fmt.Printf("chain length %v, tip %v\n", res.Chain.Len(), res.Chain.Tip())
		fmt.Printf("abandoned rounds %v, dropped signatures %v, stats %v\n", res.Abandoned, len(res.Rejections), res.Stats)
	}
	return err
}

func verifyChain(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	gs, err := genesisSigner(cfg)
	if err != nil {
		return err
	}
	store, err := storage.OpenDiskCertificateStore(filepath.Join(cfg.StoreDir, certFileName), cfg.UseSnappy, cfg.BufferSize)
	if err != nil {
		return err
	}
	defer store.Close()
	chain, err := storage.LoadChain(store)
	if err != nil {
		return err
	}
	if err := chain.Verify(gs.Verifier()); err != nil {
		return err
	}
	fmt.Printf("verified %v certificates, genesis key %v, tip %v\n", chain.Len(), gs.Verifier(), chain.Tip())
	return nil
}
