// Package extractor reads the programmable-object catalog of a monitored
// database: stored procedures, user-defined functions and views, each with
// its textual definition.
package extractor

import (
	"context"

	"github.com/CosmoTheDev/procwatch/models"
)

// Extractor is implemented per target database engine. Implementations fail
// fast on transport errors; retry policy belongs to the scanner.
type Extractor interface {
	// TestConnection verifies the target is reachable and returns a short
	// diagnostic message (typically server and database names).
	TestConnection(ctx context.Context, conn models.ConnectionInfo) (string, error)

	// ExtractAll returns every non-system programmable object with its
	// definition and server last-modified timestamp. Objects the server
	// holds no definition text for carry an empty definition.
	ExtractAll(ctx context.Context, conn models.ConnectionInfo) ([]models.ProgrammableObject, error)

	// ExtractSingle returns one object by schema and name, or nil when it
	// does not exist.
	ExtractSingle(ctx context.Context, conn models.ConnectionInfo, schema, name string) (*models.ProgrammableObject, error)
}
