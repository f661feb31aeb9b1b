package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/notify"
	"github.com/hitoshi/yieldvision/internal/repository"
)

// SessionStorageKey はクライアントストレージ上でセッションを保存するキー。
const SessionStorageKey = "user"

// 通知メッセージ
const (
	msgLoginSuccess    = "Login successful!"
	msgLoginFailed     = "Login failed: Invalid email or password"
	msgLoginError      = "Login failed: Please try again later"
	msgRegisterSuccess = "Registration successful!"
	msgRegisterDup     = "Registration failed: Email already in use"
	msgRegisterInvalid = "Registration failed: Invalid role"
	msgRegisterError   = "Registration failed: Please try again later"
	msgLogoutSuccess   = "Logged out successfully!"
)

// State はプロバイダーのライフサイクル状態。
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

// String はStateの文字列表現を返す。
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ProviderConfig はセッションプロバイダーの設定。
type ProviderConfig struct {
	// SimulatedLatency はログイン・登録の完了前に入れる固定の待ち時間。0で無効。
	SimulatedLatency time.Duration
}

// Provider は1クライアントの「誰がログインしているか」を管理する唯一の情報源。
// 保持するアイデンティティは高々1つで、変更操作はクライアントストレージへ同期的に書き込む。
type Provider struct {
	storage   *repository.ClientStorage
	directory *Directory
	emitter   notify.Emitter
	config    ProviderConfig

	initOnce sync.Once
	initErr  error

	// opMu は変更操作を直列化する。同一クライアントで同時に進行する操作は1つだけ。
	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	current *model.User
}

// NewProvider はProviderを生成する。初期化はInitializeで行う。
func NewProvider(storage *repository.ClientStorage, directory *Directory, emitter notify.Emitter, config ProviderConfig) *Provider {
	if emitter == nil {
		emitter = notify.Discard{}
	}
	return &Provider{
		storage:   storage,
		directory: directory,
		emitter:   emitter,
		config:    config,
		state:     StateUninitialized,
	}
}

// ClientID はプロバイダーが属するクライアントのIDを返す。
func (p *Provider) ClientID() string {
	return p.storage.ClientID()
}

// Initialize は永続化されたセッションを読み込む。プロバイダーの生存期間中に1回だけ実行される。
// 読み込めない値は不在として扱い、ストレージから削除する。
// 結果にかかわらず状態はreadyになる。
// ErrMalformedSession は読み込みを実行した呼び出しだけが返す。値は削除済みなので以降はnilになる。
// ストレージの読み込みエラーは以降の呼び出しでも返す。
func (p *Provider) Initialize(ctx context.Context) error {
	var loadErr error
	ran := false

	p.initOnce.Do(func() {
		ran = true
		p.setState(StateLoading)

		user, err := p.load(ctx)

		p.mu.Lock()
		p.current = user
		p.state = StateReady
		p.mu.Unlock()

		loadErr = err
		if !errors.Is(err, ErrMalformedSession) {
			p.initErr = err
		}
	})

	if ran {
		return loadErr
	}
	return p.initErr
}

func (p *Provider) load(ctx context.Context) (*model.User, error) {
	raw, err := p.storage.GetItem(ctx, SessionStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read persisted session: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	user, err := decodeSession(raw)
	if err != nil {
		slog.Warn("discarding persisted session",
			slog.String("client_id", p.ClientID()),
			slog.String("error", err.Error()),
		)
		if rmErr := p.storage.RemoveItem(ctx, SessionStorageKey); rmErr != nil {
			slog.Error("failed to remove malformed session",
				slog.String("client_id", p.ClientID()),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, err
	}

	slog.Debug("session restored",
		slog.String("client_id", p.ClientID()),
		slog.String("user_id", user.ID),
	)
	return user, nil
}

func decodeSession(raw []byte) (*model.User, error) {
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	if !u.Complete() {
		return nil, fmt.Errorf("%w: incomplete identity record", ErrMalformedSession)
	}
	return &u, nil
}

// Authenticate はメールアドレスとシークレットでログインする。
// 一致しない場合はセッションを変更せずにErrInvalidCredentialsを返す。
func (p *Provider) Authenticate(ctx context.Context, email, secret string) (*model.User, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.ensureInitialized(ctx)

	if err := p.pause(ctx); err != nil {
		return nil, err
	}

	user, ok := p.directory.Find(email, secret)
	if !ok {
		p.emit(notify.SeverityError, msgLoginFailed)
		return nil, ErrInvalidCredentials
	}

	if err := p.persist(ctx, user); err != nil {
		p.emit(notify.SeverityError, msgLoginError)
		return nil, err
	}
	p.adopt(user)

	slog.Info("user logged in",
		slog.String("client_id", p.ClientID()),
		slog.String("user_id", user.ID),
	)
	p.emit(notify.SeveritySuccess, msgLoginSuccess)

	out := *user
	return &out, nil
}

// Register は新しいアカウントを作成してログインする。
// 同じメールアドレスが存在する場合はErrDuplicateAccountを返す。
// ディレクトリへの追加はメモリ上のみで、セッション以外は永続化しない。
func (p *Provider) Register(ctx context.Context, name, email, secret string, role model.Role) (*model.User, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.ensureInitialized(ctx)

	if err := p.pause(ctx); err != nil {
		return nil, err
	}

	if p.directory.Exists(email) {
		p.emit(notify.SeverityError, msgRegisterDup)
		return nil, ErrDuplicateAccount
	}
	if !role.Valid() {
		p.emit(notify.SeverityError, msgRegisterInvalid)
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	user, err := p.directory.Add(name, email, secret, role)
	if errors.Is(err, ErrDuplicateAccount) {
		p.emit(notify.SeverityError, msgRegisterDup)
		return nil, err
	}
	if err != nil {
		p.emit(notify.SeverityError, msgRegisterError)
		return nil, err
	}

	if err := p.persist(ctx, user); err != nil {
		p.emit(notify.SeverityError, msgRegisterError)
		return nil, err
	}
	p.adopt(user)

	slog.Info("user registered",
		slog.String("client_id", p.ClientID()),
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	p.emit(notify.SeveritySuccess, msgRegisterSuccess)

	out := *user
	return &out, nil
}

// Terminate はセッションを破棄する。メモリ上のセッションは必ずクリアされる。
// ストレージからの削除に失敗した場合のみエラーを返す。何度呼んでも安全。
func (p *Provider) Terminate(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.ensureInitialized(ctx)

	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.mu.Unlock()

	err := p.storage.RemoveItem(ctx, SessionStorageKey)

	if prev != nil {
		slog.Info("user logged out",
			slog.String("client_id", p.ClientID()),
			slog.String("user_id", prev.ID),
		)
	}
	p.emit(notify.SeveritySuccess, msgLogoutSuccess)

	if err != nil {
		return fmt.Errorf("failed to remove persisted session: %w", err)
	}
	return nil
}

// Current は現在のアイデンティティのコピーを返す。未ログインの場合はnil, false。
func (p *Provider) Current() (*model.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return nil, false
	}
	u := *p.current
	return &u, true
}

// IsAuthenticated はログイン中かどうかを返す。
func (p *Provider) IsAuthenticated() bool {
	_, ok := p.Current()
	return ok
}

// State はライフサイクル状態を返す。
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ensureInitialized は変更操作の前に初期化を済ませる。
// 後から初期化が走って変更結果を上書きすることを防ぐ。
func (p *Provider) ensureInitialized(ctx context.Context) {
	if err := p.Initialize(ctx); err != nil {
		slog.Warn("session initialization failed",
			slog.String("client_id", p.ClientID()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Provider) persist(ctx context.Context, user *model.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := p.storage.SetItem(ctx, SessionStorageKey, raw); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (p *Provider) adopt(user *model.User) {
	u := *user
	p.mu.Lock()
	p.current = &u
	p.mu.Unlock()
}

func (p *Provider) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Provider) emit(severity notify.Severity, message string) {
	p.emitter.Emit(p.ClientID(), severity, message)
}

// pause は設定された固定時間だけ待つ。ctxがキャンセルされた場合はその時点で返る。
func (p *Provider) pause(ctx context.Context) error {
	if p.config.SimulatedLatency <= 0 {
		return nil
	}
	timer := time.NewTimer(p.config.SimulatedLatency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
