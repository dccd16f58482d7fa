// Command redlite-bulk-delete deletes every key matching a SCAN pattern in
// one database, logging progress per key the way an operator running this
// against a large keyspace would want to watch it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/redlite/redlite/internal/embedded"
	"github.com/redlite/redlite/internal/engine"
)

func main() {
	dataPath := flag.String("data", "redlite.db", "path to the SQLite data file")
	db := flag.Int("db", 0, "database index to scan")
	pattern := flag.String("pattern", "*", "SCAN MATCH pattern of keys to delete")
	flag.Parse()

	if *pattern == "" {
		fmt.Println("Usage: ./redlite-bulk-delete -data=redlite.db -db=0 -pattern='session:*'")
		os.Exit(1)
	}

	log := buildLogger().Named("main")

	root, err := engine.Open(engine.Options{Path: *dataPath, Log: log})
	if err != nil {
		log.Fatal("open engine", zap.Error(err))
	}
	defer root.Close()

	client := embedded.New(root)
	ctx := context.Background()
	if _, err := client.Do(ctx, "SELECT", []byte(fmt.Sprintf("%d", *db))); err != nil {
		log.Fatal("select db", zap.Error(err))
	}

	deleted := 0
	cursor := "0"
	for {
		iterStart := time.Now()
		reply, err := client.Do(ctx, "SCAN", []byte(cursor), []byte("MATCH"), []byte(*pattern), []byte("COUNT"), []byte("1000"))
		if err != nil {
			log.Fatal("scan", zap.Error(err))
		}
		page, ok := reply.([]any)
		if !ok || len(page) != 2 {
			log.Fatal("unexpected SCAN reply shape")
		}
		cursor, _ = page[0].(string)
		keys, _ := page[1].([][]byte)

		for _, key := range keys {
			if _, err := client.Do(ctx, "DEL", key); err != nil {
				log.Error("delete failed", zap.ByteString("key", key), zap.Error(err))
				continue
			}
			deleted++
			log.Info("key deleted", zap.ByteString("key", key), zap.Int("deleted", deleted), zap.Duration("took", time.Since(iterStart)))
		}

		if cursor == "0" {
			break
		}
	}

	log.Info("bulk delete complete", zap.Int("total_deleted", deleted))
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	return zap.Must(logConfig.Build())
}
