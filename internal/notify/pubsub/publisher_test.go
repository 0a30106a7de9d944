package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublish(t *testing.T) {
	t.Parallel()
	client, srv := newFakeClient(t)
	ctx := context.Background()
	_, err := client.CreateTopic(ctx, "articles")
	require.NoError(t, err)

	pub := New(client)
	defer pub.Close()

	event := scrape.ArticleEvent{ArticleID: 7, URL: "https://example.com/a", AudienceScope: "[global]"}
	id, err := pub.Publish(ctx, "articles", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got scrape.ArticleEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, event.ArticleID, got.ArticleID)
	require.Equal(t, event.AudienceScope, got.AudienceScope)
}

func TestPublishUnknownTopic(t *testing.T) {
	t.Parallel()
	client, _ := newFakeClient(t)
	pub := New(client)
	defer pub.Close()

	_, err := pub.Publish(context.Background(), "missing", map[string]string{"k": "v"})
	require.Error(t, err)
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()
	_, err := New(nil).Publish(context.Background(), "articles", "x")
	require.Error(t, err)
}

func TestCarrier(t *testing.T) {
	t.Parallel()
	c := &carrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
