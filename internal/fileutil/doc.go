// Package fileutil holds the file-system primitives the applier and undo
// engine rely on: content hashing, verified copies, cross-device aware moves
// and atomic writes. Every mutation refuses to overwrite an existing
// destination unless the caller asks for replacement explicitly.
package fileutil
