package engine

import (
	"fmt"
	"strings"
)

// Выражения ${{ <expr> }} — маленький чистый вычислитель над
// неизменяемым снимком контекста. Грамматика:
//
//	expr    := or
//	or      := and ("||" and)*
//	and     := unary ("&&" unary)*
//	unary   := "!" unary | compare
//	compare := operand (("==" | "!=") operand)?
//	operand := "(" expr ")" | literal | call | path
//	literal := "'" ... "'" | "true" | "false"
//	call    := ident "(" expr ("," expr)* ")"
//	path    := ident ("." ident)+
//
// Функции: startsWith, endsWith, contains. Значения — строки и bool.
// Парсинг проверяется на этапе валидации определения; неразрешимая
// ссылка во время run — ошибка конфигурации объемлющего job.

// Expr — распарсенное выражение.
type Expr interface {
	eval(ctx *Context) (any, error)
}

type litExpr struct{ value any }

type refExpr struct{ path []string }

type notExpr struct{ operand Expr }

type binExpr struct {
	op    string // "==", "!=", "&&", "||"
	left  Expr
	right Expr
}

type callExpr struct {
	name string
	args []Expr
}

func (e *litExpr) eval(_ *Context) (any, error) { return e.value, nil }

func (e *refExpr) eval(ctx *Context) (any, error) { return ctx.lookup(e.path) }

func (e *notExpr) eval(ctx *Context) (any, error) {
	v, err := e.operand.eval(ctx)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: operand of ! is %T", ErrNotBoolean, v)
	}
	return !b, nil
}

func (e *binExpr) eval(ctx *Context) (any, error) {
	left, err := e.left.eval(ctx)
	if err != nil {
		return nil, err
	}

	switch e.op {
	case "&&", "||":
		lb, ok := left.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: operand of %s is %T", ErrNotBoolean, e.op, left)
		}
		// Short-circuit
		if e.op == "&&" && !lb {
			return false, nil
		}
		if e.op == "||" && lb {
			return true, nil
		}
		right, err := e.right.eval(ctx)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: operand of %s is %T", ErrNotBoolean, e.op, right)
		}
		return rb, nil

	case "==", "!=":
		right, err := e.right.eval(ctx)
		if err != nil {
			return nil, err
		}
		eq := valuesEqual(left, right)
		if e.op == "!=" {
			return !eq, nil
		}
		return eq, nil

	default:
		return nil, fmt.Errorf("%w: operator %s", ErrExprSyntax, e.op)
	}
}

func (e *callExpr) eval(ctx *Context) (any, error) {
	args := make([]string, len(e.args))
	for i, arg := range e.args {
		v, err := arg.eval(ctx)
		if err != nil {
			return nil, err
		}
		args[i] = stringify(v)
	}

	switch e.name {
	case "startsWith":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: startsWith expects 2 args", ErrExprSyntax)
		}
		return strings.HasPrefix(args[0], args[1]), nil
	case "endsWith":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: endsWith expects 2 args", ErrExprSyntax)
		}
		return strings.HasSuffix(args[0], args[1]), nil
	case "contains":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: contains expects 2 args", ErrExprSyntax)
		}
		return strings.Contains(args[0], args[1]), nil
	default:
		return nil, fmt.Errorf("%w: unknown function %s", ErrExprSyntax, e.name)
	}
}

// valuesEqual сравнивает значения: bool с bool — напрямую,
// иначе через строковое представление.
func valuesEqual(a, b any) bool {
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return stringify(a) == stringify(b)
}

// --- Парсер ---

type parser struct {
	src string
	pos int
}

// ParseExpr парсит выражение (без обёртки ${{ }}).
func ParseExpr(src string) (Expr, error) {
	p := &parser{src: src}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrExprSyntax, p.rest(), p.pos)
	}
	return expr, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binExpr{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binExpr{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	p.skipSpace()
	// "!" но не "!="
	if strings.HasPrefix(p.rest(), "!") && !strings.HasPrefix(p.rest(), "!=") {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{operand: operand}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.accept("==") {
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &binExpr{op: "==", left: left, right: right}, nil
	}
	if p.accept("!=") {
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &binExpr{op: "!=", left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseOperand() (Expr, error) {
	p.skipSpace()

	// Скобки
	if p.accept("(") {
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(")") {
			return nil, fmt.Errorf("%w: expected )", ErrExprSyntax)
		}
		return expr, nil
	}

	// Строковый литерал
	if strings.HasPrefix(p.rest(), "'") {
		return p.parseString()
	}

	// Идентификатор: литерал bool, вызов функции или путь
	ident := p.parseIdent()
	if ident == "" {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrExprSyntax, p.rest(), p.pos)
	}

	switch ident {
	case "true":
		return &litExpr{value: true}, nil
	case "false":
		return &litExpr{value: false}, nil
	}

	// Вызов функции
	if p.accept("(") {
		args := make([]Expr, 0, 2)
		if !p.accept(")") {
			for {
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.accept(",") {
					continue
				}
				if p.accept(")") {
					break
				}
				return nil, fmt.Errorf("%w: expected , or ) in call to %s", ErrExprSyntax, ident)
			}
		}
		return &callExpr{name: ident, args: args}, nil
	}

	// Путь: run.ref, needs.build.outputs.version
	path := []string{ident}
	for strings.HasPrefix(p.rest(), ".") {
		p.pos++
		part := p.parseIdent()
		if part == "" {
			return nil, fmt.Errorf("%w: expected identifier after . at %d", ErrExprSyntax, p.pos)
		}
		path = append(path, part)
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: bare identifier %q", ErrExprSyntax, ident)
	}
	return &refExpr{path: path}, nil
}

func (p *parser) parseString() (Expr, error) {
	p.pos++ // открывающая кавычка
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '\'' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: unterminated string", ErrExprSyntax)
	}
	value := p.src[start:p.pos]
	p.pos++ // закрывающая кавычка
	return &litExpr{value: value}, nil
}

func (p *parser) parseIdent() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *parser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.rest(), tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) rest() string {
	return p.src[p.pos:]
}

// --- Рендеринг ---

// Render подставляет все ${{ <expr> }} в строке.
// Строка без ${{ возвращается как есть.
func Render(s string, ctx *Context) (string, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${{")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated ${{ in %q", ErrExprSyntax, s)
		}
		end += start

		b.WriteString(rest[:start])

		expr, err := ParseExpr(strings.TrimSpace(rest[start+3 : end]))
		if err != nil {
			return "", err
		}
		value, err := expr.eval(ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(stringify(value))

		rest = rest[end+2:]
	}
}

// RenderMap рендерит все значения карты.
func RenderMap(m map[string]string, ctx *Context) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	result := make(map[string]string, len(m))
	for key, value := range m {
		rendered, err := Render(value, ctx)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}

// EvalCondition вычисляет условие job или шага.
// Пустое условие — true. Обёртка ${{ }} опциональна.
// Результат обязан быть bool, иначе ErrNotBoolean.
func EvalCondition(cond string, ctx *Context) (bool, error) {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return true, nil
	}

	// Снимаем опциональную обёртку ${{ }}
	if strings.HasPrefix(cond, "${{") && strings.HasSuffix(cond, "}}") {
		cond = strings.TrimSpace(cond[3 : len(cond)-2])
	}

	expr, err := ParseExpr(cond)
	if err != nil {
		return false, err
	}
	value, err := expr.eval(ctx)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBoolean, value)
	}
	return b, nil
}

// CheckExpressions парсит все ${{ }} в строке без вычисления.
// Используется при валидации определения: синтаксическая ошибка
// в выражении — DefinitionError, а не ошибка времени выполнения.
func CheckExpressions(s string) error {
	rest := s
	for {
		start := strings.Index(rest, "${{")
		if start < 0 {
			return nil
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return fmt.Errorf("%w: unterminated ${{ in %q", ErrExprSyntax, s)
		}
		end += start
		if _, err := ParseExpr(strings.TrimSpace(rest[start+3 : end])); err != nil {
			return err
		}
		rest = rest[end+2:]
	}
}

// CheckCondition парсит условие (с опциональной обёрткой) без вычисления.
func CheckCondition(cond string) error {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return nil
	}
	if strings.HasPrefix(cond, "${{") && strings.HasSuffix(cond, "}}") {
		cond = strings.TrimSpace(cond[3 : len(cond)-2])
	}
	_, err := ParseExpr(cond)
	return err
}
