package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"docrag/internal/models"
)

// NewClient establishes a gRPC connection to Qdrant and returns the clients.
func NewClient(ctx context.Context, host, port string) (qdrant.PointsClient, qdrant.CollectionsClient, *grpc.ClientConn, error) {
	if host == "" || port == "" {
		return nil, nil, nil, fmt.Errorf("QDRANT_SERVICE_HOST or QDRANT_SERVICE_PORT is not set")
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	logrus.WithField("address", addr).Info("connecting to Qdrant gRPC service")

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logrus.WithError(err).Error("failed to connect to Qdrant")
		return nil, nil, nil, fmt.Errorf("did not connect: %w", err)
	}

	pointsClient := qdrant.NewPointsClient(conn)
	collectionsClient := qdrant.NewCollectionsClient(conn)

	// Simple health check
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = collectionsClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		logrus.WithError(err).Error("qdrant health check failed")
		conn.Close()
		return nil, nil, nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	logrus.Info("successfully connected to Qdrant")
	return pointsClient, collectionsClient, conn, nil
}

// EnsureCollectionExists creates the collection with its payload indexes when missing.
// An existing collection whose vector size differs from dimension is a configuration error.
func EnsureCollectionExists(ctx context.Context, collectionsClient qdrant.CollectionsClient, pointsClient qdrant.PointsClient, collectionName string, dimension int) error {
	log := logrus.WithFields(logrus.Fields{
		"collection_name": collectionName,
		"dimension":       dimension,
	})

	info, err := collectionsClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: collectionName,
	})
	if err == nil {
		size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != uint64(dimension) {
			log.WithField("collection_size", size).Error("collection vector size does not match configured dimension")
			return fmt.Errorf("%w: collection %q has size %d, configured %d", models.ErrDimensionMismatch, collectionName, size, dimension)
		}
		log.Info("collection already exists")
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
		return fmt.Errorf("could not get collection info: %w", err)
	}

	log.Info("collection not found, creating it now...")
	_, err = collectionsClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not create collection: %w", err)
	}
	log.Info("collection created successfully, now creating payload indexes...")

	wait := true
	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{payloadDocumentID, qdrant.FieldType_FieldTypeKeyword},
		{payloadChunkIndex, qdrant.FieldType_FieldTypeInteger},
	}
	for _, idx := range indexes {
		_, err = pointsClient.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collectionName,
			FieldName:      idx.field,
			FieldType:      idx.typ.Enum(),
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("could not create '%s' payload index: %w", idx.field, err)
		}
	}

	log.Info("all payload indexes created successfully")
	return nil
}
