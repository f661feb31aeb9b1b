package auth

import "errors"

var (
	// ErrInvalidCredentials はメールアドレスとシークレットの組がディレクトリに無いことを示す。
	// 未登録のメールアドレスとシークレット不一致は区別しない。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateAccount は同じメールアドレスのエントリが既に存在することを示す。
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrMalformedSession は永続化されたセッションが完全なアイデンティティとして読めないことを示す。
	ErrMalformedSession = errors.New("malformed persisted session")

	// ErrInvalidRole は未知のロールが指定されたことを示す。
	ErrInvalidRole = errors.New("invalid role")
)
