package main

import (
	"log"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

// Args are command line arguments.
type Args struct {
	ConfigFile     string
	OutputFile     string
	CollectionName string
	LinksFile      string
	CacheFile      string
	Refresh        bool
	LockWait       time.Duration
	Parallelism    int
	StackTrace     bool
	Verbose        bool
	Output         bool
}

func getArgs() *Args {
	confFileDefault := ""
	if value, ok := os.LookupEnv("OSUCOLLECT_CONF_FILE"); ok {
		confFileDefault = value
	}

	configFile := flag.StringP(
		"config-file",
		"f",
		confFileDefault,
		"Configuration file (optional)",
	)
	outputFile := flag.StringP(
		"output-file",
		"o",
		"",
		"Write the collection database to this file (uses config if not specified)",
	)
	collectionName := flag.StringP(
		"name",
		"n",
		"",
		"Name of the collection (uses config if not specified)",
	)
	linksFile := flag.StringP(
		"links-file",
		"l",
		"",
		"Read beatmap links from this file (uses config if not specified)",
	)
	cacheFile := flag.StringP(
		"cache-file",
		"c",
		"",
		"Cache looked up checksums in this file (uses config if not specified)",
	)
	refresh := flag.Bool("refresh", false, "Ignore the cache file and look every beatmap up again")
	lockWait := flag.Duration(
		"lock-wait",
		0,
		"Wait this long for another osucollect process to release the lock (uses config if not specified)",
	)
	help := flag.BoolP("help", "h", false, "Display help and exit")
	stackTrace := flag.Bool("stack-trace", false, "Show a stack trace along with any error message")
	verbose := flag.BoolP("verbose", "v", false, "Use verbose output")
	output := flag.Bool("output", false, "Output the build result in JSON format")
	displayVersion := flag.BoolP("version", "V", false, "Display the version and exit")
	parallelism := flag.Int("parallelism", 0, "Set the number of parallel beatmap lookups")

	flag.Parse()

	if *help {
		printUsage()
	}
	if *displayVersion {
		log.Printf("osucollect %s", version)
		//nolint: revive // deep exit from main package
		os.Exit(0)
	}

	if flag.NArg() > 0 {
		log.Printf("Unexpected arguments: %v", flag.Args())
		printUsage()
	}

	if *lockWait < 0 {
		log.Printf("Lock wait must not be negative")
		printUsage()
	}

	if *parallelism < 0 {
		log.Printf("Parallelism must be a positive number")
		printUsage()
	}

	return &Args{
		ConfigFile:     *configFile,
		OutputFile:     *outputFile,
		CollectionName: *collectionName,
		LinksFile:      *linksFile,
		CacheFile:      *cacheFile,
		Refresh:        *refresh,
		LockWait:       *lockWait,
		Parallelism:    *parallelism,
		StackTrace:     *stackTrace,
		Verbose:        *verbose,
		Output:         *output,
	}
}

func printUsage() {
	log.Printf("Usage: %s <arguments>\n", os.Args[0])
	flag.PrintDefaults()
	//nolint: revive // deep exit from main package
	os.Exit(1)
}
