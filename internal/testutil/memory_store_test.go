package testutil_test

import (
	"testing"

	"focus-walker/internal/database"
	"focus-walker/internal/database/contracttest"
	"focus-walker/internal/testutil"
)

func TestMemoryStoreContract(t *testing.T) {
	contracttest.RunDataStore(t, func(t *testing.T) (database.DataStore, contracttest.CleanupFunc) {
		return testutil.NewMemoryStore(), nil
	})
}
