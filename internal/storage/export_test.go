package storage

// SetFileRename swaps the rename a FileBackend commits with.
func SetFileRename(b *FileBackend, fn func(oldpath, newpath string) error) {
	b.rename = fn
}
