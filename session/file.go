package session

import "os"

// openFile opens path for the staged-file write path in OnWritable. A
// small indirection so tests can substitute a fake fileReader.
func openFile(path string) (fileReader, error) {
	return os.Open(path)
}
