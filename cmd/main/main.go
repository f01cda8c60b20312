package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/forgeapps/localbase/src/config"
	"github.com/forgeapps/localbase/src/emulator"
	"github.com/forgeapps/localbase/src/models"
	"github.com/forgeapps/localbase/src/realtime"
	"github.com/forgeapps/localbase/src/storage"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
}

// Smoke-run the emulator end to end: auth, table CRUD, storage, realtime.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("✓ Config loaded")

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	client, err := emulator.New(cfg, emulator.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to start emulator: %v", err)
	}
	defer client.Close()
	log.Printf("✓ Emulator ready")

	ctx := context.Background()

	result, err := client.Auth.SignUp(ctx, "demo.user@example.com", "hunter22", nil)
	if err != nil {
		log.Fatalf("Sign-up failed: %v", err)
	}
	log.Printf("✓ Signed up %s (%s)", result.User.Email, result.User.ID)

	rows, err := client.From("todos").
		Insert(models.Row{"title": "try the emulator", "user_id": result.User.ID}).
		Execute(ctx)
	if err != nil {
		log.Fatalf("Insert failed: %v", err)
	}
	log.Printf("✓ Inserted todo %v", rows[0]["id"])

	todo, err := client.From("todos").Select().Eq("user_id", result.User.ID).Single(ctx)
	if err != nil {
		log.Fatalf("Select failed: %v", err)
	}
	log.Printf("✓ Queried todo %q", todo["title"])

	if _, err := client.Storage.Bucket("avatars").Upload(ctx, result.User.ID+"/avatar.png",
		[]byte("not-really-a-png"), storage.UploadOptions{ContentType: "image/png", Upsert: true}); err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	log.Printf("✓ Uploaded avatar")

	delivered := make(chan models.TableChangePayload, 1)
	client.Channel("todos-feed").
		OnTableChange(realtime.TableChangeFilter{Event: models.EventInsert, Table: "todos"},
			func(p models.TableChangePayload) { delivered <- p }).
		Subscribe(func(status string, err error) {
			log.Printf("✓ Channel status: %s", status)
		})

	client.TriggerRealtimeEvent("todos", models.EventInsert, todo, nil)
	select {
	case p := <-delivered:
		log.Printf("✓ Realtime delivered %s on %s", p.EventType, p.Table)
	case <-time.After(time.Second):
		log.Fatalf("Realtime delivery timed out")
	}

	log.Printf("Done")
}
