package dynffi

import "sort"

// Exports returns the script-facing operations of b, keyed by name. Each is a
// VTFun the engine can bind into a script environment; errors come back as
// *Error values for the engine to raise.
func (b *Bridge) Exports() map[string]Value {
	out := map[string]Value{}
	reg := func(name string, arity int, doc string, impl func(args []Value) (Value, error)) {
		out[name] = FunVal(&Func{Name: name, Arity: arity, Doc: doc, Impl: impl})
	}

	reg("open", 1, "open(path) -> handle. Load a native module.", func(args []Value) (Value, error) {
		path, err := argStr("open", args, 0)
		if err != nil {
			return Null, err
		}
		lib, err := b.Open(path)
		if err != nil {
			return Null, err
		}
		return HandleVal(libraryKind, lib), nil
	})

	reg("symbol", 2, "symbol(handle, name) -> address. Resolve an exported function.", func(args []Value) (Value, error) {
		lib, err := argLib("symbol", args, 0)
		if err != nil {
			return Null, err
		}
		name, err := argStr("symbol", args, 1)
		if err != nil {
			return Null, err
		}
		a, err := b.Symbol(lib, name)
		if err != nil {
			return Null, err
		}
		return Addr(a), nil
	})

	reg("call", -1, "call(address, returnType, argTypes, ...args) -> value. Call a native function.", func(args []Value) (Value, error) {
		if len(args) < 3 {
			return Null, newError(KindInvalidArgument, "call", "expected address, returnType and argTypes, got %d arguments", len(args))
		}
		fn, err := argAddr("call", args, 0)
		if err != nil {
			return Null, err
		}
		ret, err := argStr("call", args, 1)
		if err != nil {
			return Null, err
		}
		types, err := argTypeList("call", args, 2)
		if err != nil {
			return Null, err
		}
		return b.CallTyped(fn, ret, types, args[3:]...)
	})

	reg("close", 1, "close(handle). Unload a module and release its callbacks.", func(args []Value) (Value, error) {
		lib, err := argLib("close", args, 0)
		if err != nil {
			return Null, err
		}
		return Null, b.CloseLibrary(lib)
	})

	reg("malloc", 1, "malloc(size) -> address. Zero-initialized native memory.", func(args []Value) (Value, error) {
		n, err := argUint32("malloc", args, 0)
		if err != nil {
			return Null, err
		}
		a, err := b.Alloc(n)
		if err != nil {
			return Null, err
		}
		return Addr(a), nil
	})

	reg("free", 1, "free(address). Release memory from malloc; null is ignored.", func(args []Value) (Value, error) {
		a, err := argAddr("free", args, 0)
		if err != nil {
			return Null, err
		}
		b.Free(a)
		return Null, nil
	})

	reg("writeArray", 4, "writeArray(address, values, type, count). Store count elements.", func(args []Value) (Value, error) {
		a, err := argAddr("writeArray", args, 0)
		if err != nil {
			return Null, err
		}
		if args[1].Tag != VTArray {
			return Null, newError(KindInvalidArgument, "writeArray", "argument 1: expected an array, got %s", args[1].Tag)
		}
		typ, err := argStr("writeArray", args, 2)
		if err != nil {
			return Null, err
		}
		count, err := argUint32("writeArray", args, 3)
		if err != nil {
			return Null, err
		}
		return Null, b.WriteArray(a, args[1].Data.([]Value), typ, int(count))
	})

	reg("readArray", 3, "readArray(address, type, count) -> array. Load count elements.", func(args []Value) (Value, error) {
		a, err := argAddr("readArray", args, 0)
		if err != nil {
			return Null, err
		}
		typ, err := argStr("readArray", args, 1)
		if err != nil {
			return Null, err
		}
		count, err := argUint32("readArray", args, 2)
		if err != nil {
			return Null, err
		}
		xs, err := b.ReadArray(a, typ, int(count))
		if err != nil {
			return Null, err
		}
		return Arr(xs), nil
	})

	reg("createCallback", 3, "createCallback(fn, returnType, argTypes) -> address. Build a native trampoline for fn.", func(args []Value) (Value, error) {
		ret, err := argStr("createCallback", args, 1)
		if err != nil {
			return Null, err
		}
		types, err := argTypeList("createCallback", args, 2)
		if err != nil {
			return Null, err
		}
		cb, err := b.CreateCallbackTyped(args[0], ret, types)
		if err != nil {
			return Null, err
		}
		return Addr(cb.Address()), nil
	})

	reg("releaseCallback", 1, "releaseCallback(address). Free a trampoline.", func(args []Value) (Value, error) {
		a, err := argAddr("releaseCallback", args, 0)
		if err != nil {
			return Null, err
		}
		return Null, b.ReleaseCallback(a)
	})

	reg("readString", -1, "readString(address, len?) -> str. Read len bytes, or up to NUL.", func(args []Value) (Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return Null, newError(KindInvalidArgument, "readString", "expected 1 or 2 arguments, got %d", len(args))
		}
		a, err := argAddr("readString", args, 0)
		if err != nil {
			return Null, err
		}
		n := int64(-1)
		if len(args) == 2 {
			if n, err = argUint32("readString", args, 1); err != nil {
				return Null, err
			}
		}
		s, err := b.ReadString(a, int(n))
		if err != nil {
			return Null, err
		}
		return Str(s), nil
	})

	reg("sizeof", 1, "sizeof(type) -> int. Native size of a type in bytes.", func(args []Value) (Value, error) {
		name, err := argStr("sizeof", args, 0)
		if err != nil {
			return Null, err
		}
		d, err := ResolveType(name)
		if err != nil {
			return Null, withOp(err, "sizeof")
		}
		return Int(int64(d.Size)), nil
	})

	return out
}

// ExportNames lists Exports' keys, sorted.
func (b *Bridge) ExportNames() []string {
	ex := b.Exports()
	out := make([]string, 0, len(ex))
	for k := range ex {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const libraryKind = "dl"

func argStr(op string, args []Value, i int) (string, error) {
	if args[i].Tag != VTStr {
		return "", newError(KindInvalidArgument, op, "argument %d: expected a string, got %s", i, args[i].Tag)
	}
	return args[i].Data.(string), nil
}

func argAddr(op string, args []Value, i int) (Address, error) {
	a, ok := args[i].AsAddress()
	if !ok {
		return 0, newError(KindInvalidArgument, op, "argument %d: expected an address, got %s", i, args[i].Tag)
	}
	return a, nil
}

func argLib(op string, args []Value, i int) (*Library, error) {
	if args[i].Tag == VTHandle {
		if h := args[i].Data.(*Handle); h.Kind == libraryKind {
			if lib, ok := h.Data.(*Library); ok {
				return lib, nil
			}
		}
	}
	return nil, newError(KindInvalidArgument, op, "argument %d: expected a library handle, got %s", i, args[i].Tag)
}

func argUint32(op string, args []Value, i int) (int64, error) {
	v := args[i]
	if v.Tag != VTInt {
		return 0, newError(KindInvalidArgument, op, "argument %d: expected an integer, got %s", i, v.Tag)
	}
	n := v.Data.(int64)
	if n < 0 || n > 1<<32-1 {
		return 0, newError(KindInvalidArgument, op, "argument %d: %d is outside the uint32 range", i, n)
	}
	return n, nil
}

func argTypeList(op string, args []Value, i int) ([]string, error) {
	if args[i].Tag != VTArray {
		return nil, newError(KindInvalidArgument, op, "argument %d: expected an array of type names, got %s", i, args[i].Tag)
	}
	xs := args[i].Data.([]Value)
	out := make([]string, len(xs))
	for j, x := range xs {
		if x.Tag != VTStr {
			return nil, newError(KindInvalidArgument, op, "argument %d[%d]: expected a type name, got %s", i, j, x.Tag)
		}
		out[j] = x.Data.(string)
	}
	return out, nil
}
