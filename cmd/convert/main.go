package main

import (
	"flag"
	"log"
	"os"

	"symbiosing/internal/config"
	database "symbiosing/internal/db"
	"symbiosing/internal/instruction"
	"symbiosing/internal/score"
	"symbiosing/internal/storage"
	"symbiosing/internal/timeline"
)

func main() {
	// 1. Parse Flags
	scorePath := flag.String("score", "", "Score file (YAML or JSON)")
	mappingPath := flag.String("mapping", "", "Part mapping file (YAML or JSON)")
	out := flag.String("out", "", "Write the set file here (default: stdout)")
	name := flag.String("name", "", "Store the set under this name in the database")
	export := flag.Bool("export", false, "Also upload the set to object storage under -name")
	quiet := flag.Bool("quiet", false, "Skip the preview table")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *scorePath == "" || *mappingPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *export && *name == "" {
		log.Fatal("❌ -export needs -name")
	}

	// 2. Load Config
	cfg := config.Load()

	// 3. Read inputs
	sc, err := score.LoadFile(*scorePath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	tcfg, err := timeline.LoadConfig(*mappingPath, cfg.Score.BPM, cfg.Score.DynamicsPWM)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	// 4. Build
	set, err := timeline.Build(sc, tcfg)
	if err != nil {
		log.Fatalf("❌ Conversion failed: %v", err)
	}
	log.Printf("✅ Converted %d parts into %d instants for roles %v (ends at %s)",
		len(tcfg.Mapping), set.Len(), set.Roles(), set.End())

	if !*quiet {
		timeline.WritePreview(os.Stderr, set)
	}

	// 5. Write outputs
	doc, err := instruction.Encode(set)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if *out != "" {
		if err := os.WriteFile(*out, doc, 0644); err != nil {
			log.Fatalf("❌ Write %s: %v", *out, err)
		}
		log.Printf("✅ Wrote %s", *out)
	} else {
		os.Stdout.Write(append(doc, '\n'))
	}

	if *name != "" {
		db := database.New(cfg)
		db.AutoMigrate()
		if err := db.SaveSet(*name, set); err != nil {
			log.Fatalf("❌ Save %q: %v", *name, err)
		}
		log.Printf("✅ Stored set %q", *name)
	}
	if *export {
		if err := storage.New(cfg).Export(*name, set); err != nil {
			log.Fatalf("❌ Export %q: %v", *name, err)
		}
		log.Printf("✅ Exported set %q", *name)
	}
}
