package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/d1nch8g/audiod/client"
	"github.com/d1nch8g/audiod/config"
	"github.com/d1nch8g/audiod/logging"
)

// command is one ctl request issued over a connected client
type command func(ctx context.Context, c *client.Client, suffixes <-chan []string) error

func ctl(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ctl", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "service address")
	fs.IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "connection retries")
	fs.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "pause between connection attempts")
	timeout := fs.Duration("timeout", 5*time.Second, "time to wait for a reply")
	verbose := fs.BoolP("verbose", "v", false, "log connection attempts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd, err := parseCommand(fs.Args())
	if err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(level, true)

	c := client.NewClient(client.Config{
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryInterval,
	}, logger)
	suffixes := make(chan []string, 1)
	c.OnSuffixes = func(list []string) {
		select {
		case suffixes <- list:
		default:
		}
	}
	c.OnTryConnect = func(attempt int) {
		logger.Debug().Int("attempt", attempt).Str("addr", cfg.Addr).Msg("connecting")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+time.Duration(cfg.MaxRetries+1)*cfg.RetryInterval)
	defer cancel()

	if err := c.Connect(ctx, cfg.Addr); err != nil {
		return err
	}
	defer c.Shutdown()

	return cmd(ctx, c, suffixes)
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return nil, errors.New("missing command")
	}
	name, rest := args[0], args[1:]

	arity := map[string]int{
		"seek":   1,
		"open":   1,
		"select": 1,
	}
	if n, ok := arity[name]; ok && len(rest) != n {
		return nil, fmt.Errorf("%s takes %d argument", name, n)
	}

	switch name {
	case "play":
		return player(func(p *client.PlayerHandler) error { return p.Play() }), nil
	case "pause":
		return player(func(p *client.PlayerHandler) error { return p.Pause() }), nil
	case "resume":
		return player(func(p *client.PlayerHandler) error { return p.Resume() }), nil
	case "stop":
		return player(func(p *client.PlayerHandler) error { return p.Stop() }), nil
	case "next":
		return player(func(p *client.PlayerHandler) error { return p.Next() }), nil
	case "prev":
		return player(func(p *client.PlayerHandler) error { return p.Previous() }), nil
	case "seek":
		ms, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid position %q: %w", rest[0], err)
		}
		return player(func(p *client.PlayerHandler) error { return p.Seek(ms) }), nil
	case "open":
		path := rest[0]
		return player(func(p *client.PlayerHandler) error { return p.Open(path) }), nil
	case "add":
		if len(rest) == 0 {
			return nil, errors.New("add takes at least one path")
		}
		return playlist(func(p *client.PlaylistHandler) error { return p.Append(rest...) }), nil
	case "select":
		index, err := strconv.ParseInt(rest[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %w", rest[0], err)
		}
		return playlist(func(p *client.PlaylistHandler) error { return p.Select(int(index)) }), nil
	case "clear":
		return playlist(func(p *client.PlaylistHandler) error { return p.Clear() }), nil
	case "shutdown":
		return func(_ context.Context, c *client.Client, _ <-chan []string) error {
			return c.StopService()
		}, nil
	case "suffixes":
		return func(ctx context.Context, _ *client.Client, suffixes <-chan []string) error {
			select {
			case list := <-suffixes:
				fmt.Fprintln(os.Stdout, strings.Join(list, " "))
				return nil
			case <-ctx.Done():
				return fmt.Errorf("no reply: %w", ctx.Err())
			}
		}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

func player(fn func(p *client.PlayerHandler) error) command {
	return func(_ context.Context, c *client.Client, _ <-chan []string) error {
		return fn(c.Player())
	}
}

func playlist(fn func(p *client.PlaylistHandler) error) command {
	return func(_ context.Context, c *client.Client, _ <-chan []string) error {
		return fn(c.Playlist())
	}
}
