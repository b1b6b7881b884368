package allowedsigners

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Fetch decompresses a zstd-compressed allowed-signers payload as
// returned by the AllowedSigners RPC and writes it to outPath, mirroring
// the rustica-agent FFI consumer: a fresh file is created (truncating
// any prior contents) and the decompressed lines are written verbatim.
//
// An empty decompressed payload is refused rather than written: an
// empty allowed_signers file would silently disable SSH certificate
// verification for every principal, so a server bug or a transport
// truncation must not be allowed to clobber a working file.
func Fetch(compressed []byte, outPath string) error {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("initializing zstd decoder: %w", err)
	}
	defer decoder.Close()

	plaintext, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompressing allowed signers: %w", err)
	}
	if len(plaintext) == 0 {
		return fmt.Errorf("server returned an empty allowed signers payload")
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating allowed signers file %s: %w", outPath, err)
	}
	defer out.Close()

	if _, err := out.Write(plaintext); err != nil {
		return fmt.Errorf("writing allowed signers file %s: %w", outPath, err)
	}
	return nil
}
