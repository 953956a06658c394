package types

import "fmt"

// EntryType 由 `ls -l` 权限字符串的第一个字符决定
type EntryType int

const (
	TypeOther EntryType = iota
	TypeDirectory
	TypeRegular
	TypeSymlink
)

func (t EntryType) String() string {
	switch t {
	case TypeDirectory:
		return "directory"
	case TypeRegular:
		return "regular"
	case TypeSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// EntryTypeFromPerms 将 "drwxr-xr-x" 映射为 TypeDirectory，"-rw-r--r--" 映射为 TypeRegular，依此类推
func EntryTypeFromPerms(perms string) EntryType {
	if perms == "" {
		return TypeOther
	}
	switch perms[0] {
	case 'd':
		return TypeDirectory
	case '-':
		return TypeRegular
	case 'l':
		return TypeSymlink
	default:
		return TypeOther
	}
}

// ParentName 是插入在非根目录列表顶部的 "返回上级" 行
const ParentName = ".."

// DirectoryEntry 代表远程目录中的一个节点（解析后的一行 `ls -lA` 输出）
type DirectoryEntry struct {
	Type         EntryType `json:"type"`
	Permissions  string    `json:"permissions"`
	Owner        string    `json:"owner"`
	Group        string    `json:"group"`
	Size         string    `json:"size"` // 远端 ls 输出的原始值
	ModifiedDate string    `json:"modifiedDate"`
	ModifiedTime string    `json:"modifiedTime"`
	Name         string    `json:"name"`
}

func (e DirectoryEntry) IsDir() bool { return e.Type == TypeDirectory }

func (e DirectoryEntry) IsParent() bool { return e.Name == ParentName }

// ParentEntry 返回合成的 ".." 行
func ParentEntry() DirectoryEntry {
	return DirectoryEntry{
		Type:        TypeDirectory,
		Permissions: "drwxr-xr-x",
		Name:        ParentName,
	}
}

// Credentials 标识远程账户，远程命令与 rsync 的 ssh 传输共用
type Credentials struct {
	User string `json:"user"`
	Host string `json:"host"`
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.User, c.Host)
}

// TransferRequest 对应一次 rsync 调用
type TransferRequest struct {
	RemotePath     string      `json:"remotePath"`
	LocalPath      string      `json:"localPath"`
	FollowSymlinks bool        `json:"followSymlinks"`
	Port           int         `json:"port"`
	Credentials    Credentials `json:"credentials"`
}

// --- 错误类型 ---

// RsyncUnavailableError 表示远端没有 rsync 且自动安装失败
type RsyncUnavailableError struct {
	Host string
	// Local 表示缺少 rsync 的是本机
	Local bool
}

func (e *RsyncUnavailableError) Error() string {
	if e.Local {
		return "rsync is not installed on this machine"
	}
	return fmt.Sprintf("rsync is not available on %s and automatic installation failed, please install it manually", e.Host)
}

// PasswordRequiredError 表示没有任何可用的认证方式
type PasswordRequiredError struct {
	Host string
}

func (e *PasswordRequiredError) Error() string {
	return fmt.Sprintf("password is required for host %s", e.Host)
}

// AuthenticationFailedError 表示服务器拒绝了所有提供的认证方式
type AuthenticationFailedError struct {
	Host string
	Err  error
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("authentication failed for host %s", e.Host)
}

func (e *AuthenticationFailedError) Unwrap() error { return e.Err }

// HostKeyVerificationError 表示主机指纹未知或与 known_hosts 不一致
type HostKeyVerificationError struct {
	Host        string
	Fingerprint string
	Changed     bool
	Err         error
}

func (e *HostKeyVerificationError) Error() string {
	if e.Changed {
		return fmt.Sprintf("host key for %s has CHANGED (%s)", e.Host, e.Fingerprint)
	}
	return fmt.Sprintf("host key verification required for host %s (%s)", e.Host, e.Fingerprint)
}

func (e *HostKeyVerificationError) Unwrap() error { return e.Err }

// ExecResult 是单条远程命令的执行结果
type ExecResult struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

func (r ExecResult) OK() bool { return r.ExitStatus == 0 }
