package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/internal/commands"
	"github.com/keshon/warden/internal/docs"
	"github.com/keshon/warden/internal/logging"
	"github.com/keshon/warden/pkg/cmd"
)

func main() {
	tmplPath := flag.String("template", "README.md.tmpl", "readme template")
	outPath := flag.String("out", "README.md", "output file")
	prefix := flag.String("prefix", "/", "command prefix shown in the reference")
	flag.Parse()

	if _, err := logging.Setup(logging.Options{Format: "console"}); err != nil {
		log.Fatal().Err(err).Msg("logging")
	}

	registry := cmd.NewRegistry()
	if err := commands.Register(registry, commands.Deps{}); err != nil {
		log.Error().Err(err).Msg("register commands")
		os.Exit(1)
	}
	if err := docs.UpdateReadme(registry, *prefix, *tmplPath, *outPath); err != nil {
		log.Error().Err(err).Msg("update readme")
		os.Exit(1)
	}
}
