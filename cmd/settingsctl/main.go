package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/pro0o/deslocado/config"
	"github.com/pro0o/deslocado/flash"
	"github.com/pro0o/deslocado/settings"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "get":
		err = getCmd(args)
	case "set":
		err = writeCmd("set", args)
	case "add":
		err = writeCmd("add", args)
	case "delete":
		err = deleteCmd(args)
	case "dump":
		err = dumpCmd(args)
	case "compact":
		err = compactCmd(args)
	case "wipe":
		err = wipeCmd(args)
	case "stats":
		err = statsCmd(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, settings.ErrNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`settingsctl - inspect and edit a flash settings image

Usage:
  settingsctl <command> [options]

Commands:
  get       Print a value
  set       Replace every value of a key
  add       Append a value to a key
  delete    Delete one value, or all with -index -1
  dump      Print every live value
  compact   Force a compaction pass
  wipe      Erase all settings
  stats     Show the active region
  help      Show this help

Common options:
  -config   YAML config (page_size, total_pages, erase_value, base_address, image_path)
  -image    Flash image path, overrides the config
  -v        Verbose logging

Examples:
  settingsctl set -key 3 -value "hello"
  settingsctl add -key 3 -hex 0a0b0c
  settingsctl get -key 3 -index 1
  settingsctl delete -key 3 -index -1`)
}

type common struct {
	configPath string
	image      string
	verbose    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.image, "image", "", "Flash image path")
	fs.BoolVar(&c.verbose, "v", false, "Verbose logging")
}

// open loads the config, locks the image and initializes the store. The
// returned func closes the image.
func (c *common) open() (*settings.Store, func(), error) {
	level := zerolog.WarnLevel
	if c.verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	cfg := config.DefaultConfig()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if c.image != "" {
		cfg.ImagePath = c.image
	}

	total := int(cfg.BaseAddress)/cfg.PageSize + cfg.TotalPages
	dev, err := flash.OpenFile(cfg.ImagePath, cfg.PageSize, total, cfg.EraseValue)
	if err != nil {
		return nil, nil, err
	}
	dev.Strict = cfg.Strict

	closeDev := func() {
		if err := dev.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close flash image")
		}
	}

	s, err := settings.New(dev, cfg)
	if err != nil {
		closeDev()
		return nil, nil, err
	}
	if err := s.Init(); err != nil {
		closeDev()
		return nil, nil, fmt.Errorf("init settings: %w", err)
	}
	return s, func() {
		s.Deinit()
		closeDev()
	}, nil
}

func parseKey(raw string) (uint16, error) {
	if raw == "" {
		return 0, errors.New("-key is required")
	}
	key, err := strconv.ParseUint(raw, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", raw, err)
	}
	return uint16(key), nil
}

func getCmd(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	var c common
	c.register(fs)
	key := fs.String("key", "", "Key, decimal or 0x hex (required)")
	index := fs.Int("index", 0, "Value index")
	asHex := fs.Bool("hex", false, "Print the value as hex")
	fs.Parse(args)

	k, err := parseKey(*key)
	if err != nil {
		return err
	}

	s, done, err := c.open()
	if err != nil {
		return err
	}
	defer done()

	val, err := s.Get(k, *index)
	if err != nil {
		return err
	}
	if *asHex {
		fmt.Println(hex.EncodeToString(val))
	} else {
		fmt.Println(string(val))
	}
	return nil
}

func writeCmd(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var c common
	c.register(fs)
	key := fs.String("key", "", "Key, decimal or 0x hex (required)")
	value := fs.String("value", "", "Value as text")
	hexValue := fs.String("hex", "", "Value as hex, overrides -value")
	fs.Parse(args)

	k, err := parseKey(*key)
	if err != nil {
		return err
	}
	val := []byte(*value)
	if *hexValue != "" {
		if val, err = hex.DecodeString(*hexValue); err != nil {
			return fmt.Errorf("invalid -hex: %w", err)
		}
	}

	s, done, err := c.open()
	if err != nil {
		return err
	}
	defer done()

	if name == "add" {
		return s.Add(k, val)
	}
	return s.Set(k, val)
}

func deleteCmd(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	var c common
	c.register(fs)
	key := fs.String("key", "", "Key, decimal or 0x hex (required)")
	index := fs.Int("index", 0, "Value index, -1 for all")
	fs.Parse(args)

	k, err := parseKey(*key)
	if err != nil {
		return err
	}

	s, done, err := c.open()
	if err != nil {
		return err
	}
	defer done()

	return s.Delete(k, *index)
}

func dumpCmd(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)

	s, done, err := c.open()
	if err != nil {
		return err
	}
	defer done()

	return s.Walk(func(e settings.Entry) error {
		fmt.Printf("key=0x%04x index=%d len=%d value=%s\n", e.Key, e.Index, len(e.Value), hex.EncodeToString(e.Value))
		return nil
	})
}

func compactCmd(args []string) error {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)

	s, done, err := c.open()
	if err != nil {
		return err
	}
	defer done()

	free, err := s.Compact()
	if err != nil {
		return err
	}
	fmt.Printf("free=%d\n", free)
	return nil
}

func wipeCmd(args []string) error {
	fs := flag.NewFlagSet("wipe", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)

	s, done, err := c.open()
	if err != nil {
		return err
	}
	defer done()

	return s.Wipe()
}

func statsCmd(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)

	s, done, err := c.open()
	if err != nil {
		return err
	}
	defer done()

	st := s.Stats()
	fmt.Printf("region=%d base=0x%x used=%d capacity=%d free=%d\n",
		st.Region, st.ActiveBase, st.UsedSize, st.Capacity, st.Capacity-st.UsedSize)
	return nil
}
