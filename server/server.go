package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"mirrorfeed/cache"
	"mirrorfeed/models"
	"mirrorfeed/thread"
)

type ServerConfig struct {

	// Coordinator serves posts from cache and network
	Coordinator *cache.Coordinator

	// Broadcast channel to pass stored posts to SSE clients
	Broadcaster *Broadcaster
}

// Broadcaster fans stored-post events out to SSE clients
type Broadcaster struct {
	sync.RWMutex
	postClients map[string]chan models.PostStoredEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		postClients: make(map[string]chan models.PostStoredEvent, 1024),
	}
}

func (b *Broadcaster) BroadcastPostStored(event models.PostStoredEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.postClients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping post for client: %v", id)
		}
	}
}

func (b *Broadcaster) AddClient(key string, postClient chan models.PostStoredEvent) {
	b.Lock()
	defer b.Unlock()
	b.postClients[key] = postClient
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.postClients),
	}).Info("Adding client to broadcaster")
}

func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.postClients[key]; ok {
		close(client)
		delete(b.postClients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.postClients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.postClients {
		close(client)
		delete(b.postClients, key)
	}
}

// Consume drains coordinator events into the broadcaster until the channel
// closes
func (b *Broadcaster) Consume(events <-chan interface{}) {
	for event := range events {
		if stored, ok := event.(models.PostStoredEvent); ok {
			b.BroadcastPostStored(stored)
		}
	}
}

// Returns a fiber.App instance to be used as an HTTP server for the feed
func Server(config *ServerConfig) *fiber.App {

	bc := config.Broadcaster

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Cache-Control",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/feed/:handle", func(c *fiber.Ctx) error {
		handle := c.Params("handle")
		limit := c.QueryInt("limit", 100)
		since := parseSince(c.Query("since", ""))
		mode := parseCacheMode(c.Query("mode", ""))

		posts, err := config.Coordinator.GetPosts(c.Context(), handle, since, mode, limit, 0)
		if err != nil {
			log.WithFields(log.Fields{
				"handle": handle,
				"error":  err,
			}).Error("Error getting posts")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// Threads read top to bottom, feed stays newest-first
		posts = thread.OrderForDisplay(posts)

		return c.Status(200).JSON(fiber.Map{
			"handle": strings.ToLower(handle),
			"count":  len(posts),
			"posts":  posts,
		})
	})

	app.Get("/feeds", func(c *fiber.Ctx) error {
		handlesParam := c.Query("handles", "")
		if handlesParam == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "handles query parameter is required",
			})
		}
		handles := strings.Split(handlesParam, ",")
		limit := c.QueryInt("limit", 100)
		since := parseSince(c.Query("since", ""))
		mode := parseCacheMode(c.Query("mode", ""))

		results := config.Coordinator.GetMultiplePosts(c.Context(), handles, since, limit, mode)

		response := fiber.Map{}
		for handle, result := range results {
			if result.Err != nil {
				response[handle] = fiber.Map{"error": result.Err.Error()}
				continue
			}
			response[handle] = fiber.Map{
				"count": len(result.Posts),
				"posts": thread.OrderForDisplay(result.Posts),
			}
		}

		return c.Status(200).JSON(response)
	})

	app.Delete("/feed/:handle/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.Status(200).SendString("OK")
	})

	app.Get("/feed/:handle/sse", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		handle := strings.ToLower(c.Params("handle"))

		// Unique client key
		key := uuid.New().String()
		ssePostChannel := make(chan models.PostStoredEvent, 10) // Buffered channel
		aliveChan := time.NewTicker(5 * time.Second)

		defer aliveChan.Stop()

		bc.AddClient(key, ssePostChannel)

		cleanup := func() {
			log.Infof("Cleaning up SSE stream for client: %s", key)
			bc.RemoveClient(key)
		}

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cleanup()

			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-aliveChan.C:
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case event, ok := <-ssePostChannel:
					if !ok {
						log.Warnf("Post channel closed for client %s", key)
						return
					}
					if handle != "" && event.Post.AuthorHandle != handle {
						continue
					}
					jsonPost, err := json.Marshal(event.Post)
					if err != nil {
						log.Errorf("Error marshalling post for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: post\ndata: %s\n\n", jsonPost); err != nil {
						log.Warnf("Failed to send post event to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush post event for client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	return app
}

func parseSince(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0)
	}
	return time.Time{}
}

func parseCacheMode(raw string) models.CacheMode {
	switch raw {
	case "cache-only":
		return models.CacheOnly
	case "no-cache":
		return models.CacheDisabled
	case "network-first":
		return models.NetworkStoreFirst
	default:
		return models.LocalCacheEnabled
	}
}
