package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	kgo "github.com/segmentio/kafka-go"

	"github.com/user/listing-crawler/internal/adapter/kafka"
	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/mocks"
)

func added(ids ...string) *entity.CrawlResult {
	result := entity.NewCrawlResult("leboncoin")
	for i, id := range ids {
		result.Added = append(result.Added, &entity.StoredListing{
			ID: int64(i + 1),
			ExtractedListing: entity.ExtractedListing{
				Source:     "leboncoin",
				URL:        "https://www.leboncoin.fr/locations/" + id + ".htm",
				ExternalID: id,
				Price:      1200,
				Currency:   "EUR",
			},
		})
	}
	result.Seen = []string{"https://www.leboncoin.fr/locations/1.htm"}
	return result
}

func TestNotifyAddedPublishesEachListing(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	notifier := kafka.NewNotifierWithWriter(writer)

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			if len(msgs) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(msgs))
			}
			if string(msgs[0].Key) != "leboncoin:2001" || string(msgs[1].Key) != "leboncoin:2002" {
				t.Fatalf("unexpected message keys: %s, %s", msgs[0].Key, msgs[1].Key)
			}

			var got entity.StoredListing
			if err := json.Unmarshal(msgs[1].Value, &got); err != nil {
				t.Fatalf("failed to decode message: %v", err)
			}
			if got.ID != 2 || got.ExternalID != "2002" || got.Price != 1200 {
				t.Fatalf("unexpected listing payload: %+v", got)
			}
			return nil
		})

	if err := notifier.NotifyAdded(context.Background(), added("2001", "2002")); err != nil {
		t.Fatalf("NotifyAdded returned error: %v", err)
	}
}

func TestNotifyAddedSkipsEmptyResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	notifier := kafka.NewNotifierWithWriter(writer)

	if err := notifier.NotifyAdded(context.Background(), added()); err != nil {
		t.Fatalf("NotifyAdded returned error: %v", err)
	}
}

func TestNotifyAddedError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	notifier := kafka.NewNotifierWithWriter(writer)

	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("write failed"))
	if err := notifier.NotifyAdded(context.Background(), added("2001")); err == nil {
		t.Fatal("expected error, got nil")
	}
}
