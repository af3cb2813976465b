package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"ticket-storefront/internal/receipts"
)

func init() {
	m.Register(func(app core.App) error {
		return app.Save(receipts.NewCollection())
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId(receipts.Collection)
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
