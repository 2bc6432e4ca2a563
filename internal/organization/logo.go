package organization

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/h2non/filetype"

	"github.com/geostats/probono/internal/model"
)

// logoSniffLen はファイル形式判定に読み込む先頭バイト数。
const logoSniffLen = 100

// LogoKeyPrefix はロゴを保存するオブジェクトキーのプレフィックス。
const LogoKeyPrefix = "organizationLogos"

// preparedLogo は形式判定済みのロゴ。bodyは判定に使った先頭バイトを含む。
type preparedLogo struct {
	extension   string
	contentType string
	body        io.Reader
}

// prepareLogo はロゴの先頭バイトからファイル形式を判定する。
// 画像として判定できない場合はUNSUPPORTED_LOGO_TYPEを返す。
// ストレージへの操作は一切行わない。
func prepareLogo(logo *model.LogoUpload, maxSize int64) (*preparedLogo, error) {
	if maxSize > 0 && logo.Size > maxSize {
		return nil, model.NewLogoTooLargeError(maxSize)
	}

	head := make([]byte, logoSniffLen)
	n, err := io.ReadFull(logo.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ロゴの読み込みに失敗しました: %w", err)
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown || kind.MIME.Type != "image" {
		return nil, model.NewUnsupportedLogoTypeError()
	}

	return &preparedLogo{
		extension:   kind.Extension,
		contentType: kind.MIME.Value,
		body:        io.MultiReader(bytes.NewReader(head), logo.Content),
	}, nil
}

// logoKey は組織IDとアップロード時刻（ミリ秒）からオブジェクトキーを組み立てる。
func logoKey(organizationID, unixMillis int64, extension string) string {
	return fmt.Sprintf("%s/%d-%d.%s", LogoKeyPrefix, organizationID, unixMillis, extension)
}
