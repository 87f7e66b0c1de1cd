// Package media discovers capture files on disk.
//
// Scan lists one directory (non-recursively), keeps regular files whose
// extension is in the caller's list, and records each file's creation time.
// Birth time comes from statx on Linux; when the filesystem does not report
// it the inode change time is used instead. The returned MediaFile values are
// immutable snapshots identified by path.
package media
