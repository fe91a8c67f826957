// Package tokenstore はCLIのセッショントークンをOSのキーリングに保存する。
// キーリングを使えない環境ではユーザー設定ディレクトリのファイルに保存する。
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mashtheking/PropertyPro-sub001/internal/session"
	"github.com/zalando/go-keyring"
)

const keyringService = "propertypro-cli"

// Options はNewの設定。
type Options struct {
	// Profileは複数アカウントを切り替えるための名前。空なら"default"
	Profile string
	// Dirはファイル保存先。空ならos.UserConfigDir()/propertypro
	Dir string
}

// New はプロファイルごとのTokenStoreを返す。
// キーリングが利用できればキーリングを、利用できなければファイルを使う。
func New(opts Options) (session.TokenStore, error) {
	if opts.Profile == "" {
		opts.Profile = "default"
	}
	if opts.Dir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		opts.Dir = filepath.Join(dir, "propertypro")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}

	fallback := &fileStore{path: filepath.Join(opts.Dir, "session."+opts.Profile+".json")}
	account := "session." + opts.Profile

	// 空振りのGetでキーリングが使えるか確認する
	if _, err := keyring.Get(keyringService, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fallback, nil
	}
	return &keyringStore{account: account, fallback: fallback}, nil
}

type keyringStore struct {
	account  string
	fallback *fileStore
}

func (s *keyringStore) Load() (*session.StoredToken, error) {
	raw, err := keyring.Get(keyringService, s.account)
	if err != nil {
		// 以前ファイルに保存したトークンが残っている場合がある
		return s.fallback.Load()
	}
	return decode([]byte(raw))
}

func (s *keyringStore) Save(token session.StoredToken) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, s.account, string(b)); err != nil {
		return s.fallback.Save(token)
	}
	// キーリングへ移行できたので平文のファイルは消す
	_ = s.fallback.Clear()
	return nil
}

func (s *keyringStore) Clear() error {
	if err := keyring.Delete(keyringService, s.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete keyring entry: %w", err)
	}
	return s.fallback.Clear()
}

type fileStore struct {
	path string
}

func (s *fileStore) Load() (*session.StoredToken, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(b)
}

func (s *fileStore) Save(token session.StoredToken) error {
	b, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func decode(b []byte) (*session.StoredToken, error) {
	var t session.StoredToken
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode stored token: %w", err)
	}
	if t.Token == "" {
		return nil, nil
	}
	return &t, nil
}

// compile-time interface checks
var (
	_ session.TokenStore = (*keyringStore)(nil)
	_ session.TokenStore = (*fileStore)(nil)
)
