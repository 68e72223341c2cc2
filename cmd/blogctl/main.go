package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-blog/pkg/config"
)

const usage = `Simple Blog CLI

Operates the blog core (media objects, engagement counters and tags) directly
against the configured database and blob storage.

USAGE:
  blogctl <command> [options] [arguments]

OBJECT COMMANDS:
  put <name> <file>            Store a new object (file '-' reads stdin)
  update <name> <file>         Replace the bytes of an object
  get <name>                   Show object metadata
  cat <name>                   Write object bytes to stdout
  rm <name>                    Delete an object
  ls                           List objects
  safe <name> [true|false]     Set the safety-checked flag
  scan                         Safety-check unchecked objects

POST COMMANDS:
  post <title>                 Register a post
  hit <post-id> <address>      Record a hit
  like <post-id> <address>     Record a like
  stats <post-id>              Show counters of a post
  top                          Show the most hit or liked posts

TAG COMMANDS:
  tag <identifier>             Create a tag
  tr <identifier> <lang> <name>
                               Set the display name of a tag in a language
  attach <post-id> <identifier>
  detach <post-id> <identifier>
  tags <post-id>               List the tags of a post
  resolve <identifier> <lang>  Show the display name of a tag

OTHER COMMANDS:
  migrate                      Create the database schema and tables
  env                          Describe the environment variables

Configuration is read from the environment. A .env file in the current
directory is loaded first; variables already set take precedence.

EXAMPLES:
  STORAGE_URL=file:///var/blog DATABASE_URL=postgres://blog@localhost/blog blogctl migrate
  blogctl put diagram.png ./diagram.png --uploader=alice
  blogctl ls --unchecked --json
  blogctl scan --deny=application/x-msdownload,application/x-elf --workers=4
  blogctl tr golang fr "Le Go"
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage, "\n")
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "help", "--help", "-h":
		fmt.Print(usage, "\n")
		return
	case "env":
		desc, err := config.Describe()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(desc)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n%s\n", err, usage)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	handler, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}

	opts := []config.Option{config.WithEnv()}
	if command == "migrate" {
		opts = append(opts, config.WithAutoMigrate(true))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	core, err := cfg.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build blog core: %w", err)
	}
	defer core.Close()

	return handler(&cli{core: core, out: os.Stdout}, ctx, args)
}
