// Package journal records every mutation the applier performs so a session
// can be reversed later.
//
// The journal is a SQLite database separate from the identity cache. Each
// apply run opens a session; each action becomes an entry written as
// pending before the file system is touched and completed afterwards. Prior
// file bytes needed to reverse tag and art writes live in a
// content-addressed blob directory next to the database.
//
// Unlike the identity cache, a journal that cannot be read is never reset:
// it is the only record of how to undo past runs.
package journal
