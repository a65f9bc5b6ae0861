// osucollect builds an osu! collection database from a list of beatmap
// links.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/osucollect/osucollect/internal/builder"
	"github.com/osucollect/osucollect/internal/vars"
)

const unknownVersion = "unknown"

// version is set on build, or from build information in version.go.
var version = unknownVersion

func main() {
	log.SetFlags(0)

	args := getArgs()
	fatalLogger := func(message string, err error) {
		if args.StackTrace {
			log.Printf("%s: %+v", message, err)
		} else {
			log.Printf("%s: %s", message, err)
		}
		os.Exit(1)
	}

	config, err := builder.NewConfig(configOptions(args)...)
	if err != nil {
		fatalLogger("error loading configuration", err)
	}

	if config.Verbose {
		log.Printf("osucollect version %s", version)
		if args.ConfigFile != "" {
			log.Printf("Using config file %s", args.ConfigFile)
		}
		log.Printf("Using links file %s", config.LinksFile)
		log.Printf("Using cache file %s", config.CacheFile)
		log.Printf("Writing collection %q to %s", config.CollectionName, config.OutputFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, config); err != nil {
		stop()
		fatalLogger("error building collection", err)
	}
}

// configOptions turns the command line arguments into config overrides.
func configOptions(args *Args) []builder.Option {
	opts := []builder.Option{
		builder.WithConfigFile(args.ConfigFile),
		builder.WithOutputFile(args.OutputFile),
		builder.WithCollectionName(args.CollectionName),
		builder.WithLinksFile(args.LinksFile),
		builder.WithCacheFile(args.CacheFile),
		builder.WithParallelism(args.Parallelism),
		builder.WithLockWait(args.LockWait),
	}

	if args.Refresh {
		opts = append(opts, builder.WithRefresh)
	}

	if args.Verbose {
		opts = append(opts, builder.WithVerbose)
	}

	if args.Output {
		opts = append(opts, builder.WithOutput)
	}

	return opts
}

func run(ctx context.Context, config *builder.Config) error {
	vars.Version = version

	b, err := builder.NewBuilder(config)
	if err != nil {
		return err
	}
	return b.Run(ctx)
}
