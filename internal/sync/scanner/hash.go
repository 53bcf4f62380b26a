package scanner

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"

	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// HashFile returns the lowercase hex SHA-1 of the file at path.
// The content is streamed, so memory use does not depend on file size.
func HashFile(path string) (hash string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", utils.NewLocalIOError(path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = utils.NewLocalIOError(path, closeErr)
		}
	}()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", utils.NewLocalIOError(path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
