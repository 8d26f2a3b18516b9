package server

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

// service is a module implemented by the exported methods of a struct.
// Method Foo becomes command "<module>.foo".
type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

func newService(module string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	if module == "" {
		module = lowerFirst(typ.Elem().Name())
	}
	svc := &service{
		name:   module,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: %s has no methods of the form Method(*Args, *Reply) error", typ)
	}
	return svc, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// registerMethods keeps methods shaped Method(*Args, *Reply) error.
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType ||
			mt.In(1).Kind() != reflect.Ptr || mt.In(2).Kind() != reflect.Ptr {
			continue
		}
		s.method[lowerFirst(method.Name)] = &methodType{
			method:    method,
			ArgType:   mt.In(1).Elem(),
			ReplyType: mt.In(2).Elem(),
		}
	}
}

// commands lists the wire names this service answers.
func (s *service) commands() map[string]*methodType {
	out := make(map[string]*methodType, len(s.method))
	for name, mt := range s.method {
		out[s.name+"."+name] = mt
	}
	return out
}

func (s *service) call(mType *methodType, argv, replyv reflect.Value) error {
	results := mType.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func splitMethod(method string) (module, command string, ok bool) {
	module, command, ok = strings.Cut(method, ".")
	return module, command, ok && module != "" && command != ""
}
