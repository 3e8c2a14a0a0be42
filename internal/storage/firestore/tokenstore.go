package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// FirestoreStore implements dispatch.DeviceStore using Google Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// deviceRecord is the stored representation of one installation.
type deviceRecord struct {
	Platform  string    `firestore:"platform"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *FirestoreStore) Register(ctx context.Context, userID string, device dispatch.Device) error {
	// Hash of the token as doc ID: re-registering the same token is an upsert.
	record := deviceRecord{
		Platform:  string(device.Platform),
		Token:     device.Token,
		UpdatedAt: time.Now(),
	}

	_, err := s.deviceRef(userID, hashToken(device.Token)).Set(ctx, record)
	if err != nil {
		return fmt.Errorf("firestore register failed: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Unregister(ctx context.Context, userID string, token string) error {
	_, err := s.deviceRef(userID, hashToken(token)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore unregister failed: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Fetch(ctx context.Context, userID string) ([]dispatch.Device, error) {
	iter := s.devicesCollection(userID).Documents(ctx)
	defer iter.Stop()

	devices := make([]dispatch.Device, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			continue
		}
		if record.Token == "" {
			continue
		}
		platform, err := push.ParsePlatform(record.Platform)
		if err != nil {
			// Rows written before platform tracking default to android (FCM).
			platform = push.PlatformAndroid
		}
		devices = append(devices, dispatch.Device{Token: record.Token, Platform: platform})
	}

	return devices, nil
}

// deviceRef: users/{userID}/devices/{tokenHash}
func (s *FirestoreStore) deviceRef(userID, docID string) *firestore.DocumentRef {
	return s.devicesCollection(userID).Doc(docID)
}

func (s *FirestoreStore) devicesCollection(userID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(userID).Collection("devices")
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
