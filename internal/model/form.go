package model

// FormName はメッセージを表示するフォームを識別する。
type FormName string

const (
	FormLogin  FormName = "login"
	FormSignup FormName = "signup"
)

// FormMessageKind はフォームメッセージの種類。
type FormMessageKind string

const (
	FormMessageError   FormMessageKind = "error"
	FormMessageSuccess FormMessageKind = "success"
)

// FormMessage はランディングページのフォームに1件だけ表示されるメッセージ。
// 成功とエラーは同時に表示されない。
type FormMessage struct {
	Form FormName
	Kind FormMessageKind
	Text string
}

// IsError はエラーメッセージかどうかを返す。
func (m FormMessage) IsError() bool {
	return m.Kind == FormMessageError
}
