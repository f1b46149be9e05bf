package app

import (
	"fmt"
	"sync"

	"github.com/yungbote/companysync-backend/internal/platform/apify"
	"github.com/yungbote/companysync-backend/internal/platform/gcp"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
	"github.com/yungbote/companysync-backend/internal/platform/openai"
)

// Clients builds remote clients on first use so a command only needs the
// credentials of the services it actually calls.
type Clients struct {
	log *logger.Logger

	bucketOnce sync.Once
	bucket     gcp.BucketService
	bucketErr  error

	openaiOnce sync.Once
	openai     openai.Client
	openaiErr  error

	apifyOnce sync.Once
	apify     apify.Client
	apifyErr  error
}

func newClients(log *logger.Logger) *Clients {
	return &Clients{log: log}
}

func (c *Clients) Bucket() (gcp.BucketService, error) {
	c.bucketOnce.Do(func() {
		if c.bucket != nil {
			return
		}
		c.bucket, c.bucketErr = resolveBucketService(c.log)
	})
	return c.bucket, c.bucketErr
}

func (c *Clients) OpenAI() (openai.Client, error) {
	c.openaiOnce.Do(func() {
		if c.openai != nil {
			return
		}
		cl, err := openai.NewClient(c.log)
		if err != nil {
			c.openaiErr = fmt.Errorf("init openai client: %w", err)
			return
		}
		c.openai = cl
	})
	return c.openai, c.openaiErr
}

func (c *Clients) Apify() (apify.Client, error) {
	c.apifyOnce.Do(func() {
		if c.apify != nil {
			return
		}
		cl, err := apify.NewClient(c.log)
		if err != nil {
			c.apifyErr = fmt.Errorf("init apify client: %w", err)
			return
		}
		c.apify = cl
	})
	return c.apify, c.apifyErr
}
