/*
Package database provides stores for the records of named collections in
embedded databases.

A Store is a handle for one collection of one database. It opens the
database in the background when it is created and reopens it on demand, so
callers never deal with the connection lifecycle:

	notes := database.New("notes-db", "notes")

	id, err := notes.Add(ctx, record.New("shopping", map[string]interface{}{
		"items": []string{"milk", "eggs"},
	}))
	if err != nil {
		return err
	}

	r, err := notes.GetByID(ctx, id)

All stores of the same database share one connection to the storage engine.
The connection is closed when the last store releases it. Databases are
stored in the "databases" directory of the structure passed to Initialize.

Storage engines are registered by importing them:

	import _ "github.com/ainotebook/notebase/database/storage/bbolt"
*/
package database
