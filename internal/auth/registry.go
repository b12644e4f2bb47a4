package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// User は台帳に登録されたユーザー。
type User struct {
	// ID はユーザーID。
	ID string
	// Username はログイン名。
	Username string
	// Role はユーザーのロール。
	Role string
	// passwordHash はbcryptハッシュ化されたパスワード。
	passwordHash []byte
}

// Registry はユーザー台帳。生成後は読み取り専用で、並行アクセスしてよい。
type Registry struct {
	byUsername map[string]User
}

// seedUser は台帳の初期データ。
type seedUser struct {
	id, username, password, role string
}

// defaultUsers は組み込みのデモ用ユーザー。
var defaultUsers = []seedUser{
	{id: "1", username: "mhs1", password: "123456", role: "student"},
	{id: "2", username: "mhs2", password: "654321", role: "student"},
}

// NewRegistry は組み込みのユーザーで台帳を生成する。
func NewRegistry() (*Registry, error) {
	return newRegistry(defaultUsers, bcrypt.DefaultCost)
}

func newRegistry(seeds []seedUser, cost int) (*Registry, error) {
	r := &Registry{byUsername: make(map[string]User, len(seeds))}
	for _, s := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), cost)
		if err != nil {
			return nil, fmt.Errorf("ユーザー %s のパスワードハッシュ化に失敗: %w", s.username, err)
		}
		r.byUsername[s.username] = User{ID: s.id, Username: s.username, Role: s.role, passwordHash: hash}
	}
	return r, nil
}

// errNoMatch はユーザー名またはパスワードが一致しないことを表す。
var errNoMatch = errors.New("ユーザー名またはパスワードが一致しません")

// Authenticate はユーザー名とパスワードを照合する。
// ユーザーが存在しない場合とパスワード不一致の場合を区別しない。
func (r *Registry) Authenticate(username, password string) (User, error) {
	u, ok := r.byUsername[username]
	if !ok {
		return User{}, errNoMatch
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return User{}, errNoMatch
	}
	return u, nil
}
