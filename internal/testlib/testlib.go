//go:build cgo

// Package testlib links a small set of native functions into the binary and
// hands out their addresses, so bridge tests can call real native code
// without shipping a shared object. Every function bumps a call counter.
package testlib

/*
#include <stdint.h>
#include <stddef.h>
#include <stdlib.h>
#include <string.h>

static int tl_native_calls;

#define TL_ID(name, T) static T name(T x) { tl_native_calls++; return x; }
TL_ID(tl_id_int8, int8_t)
TL_ID(tl_id_uint8, uint8_t)
TL_ID(tl_id_int16, int16_t)
TL_ID(tl_id_uint16, uint16_t)
TL_ID(tl_id_int32, int32_t)
TL_ID(tl_id_uint32, uint32_t)
TL_ID(tl_id_int64, int64_t)
TL_ID(tl_id_uint64, uint64_t)
TL_ID(tl_id_float, float)
TL_ID(tl_id_double, double)
TL_ID(tl_id_longdouble, long double)
TL_ID(tl_id_char, signed char)
TL_ID(tl_id_uchar, unsigned char)
TL_ID(tl_id_pointer, void*)
TL_ID(tl_id_string, const char*)
TL_ID(tl_id_long, long)
TL_ID(tl_id_ulong, unsigned long)

static int32_t tl_add_i32(int32_t a, int32_t b) { tl_native_calls++; return a + b; }
static double tl_add_double(double a, double b) { tl_native_calls++; return a + b; }
static double tl_mix(int8_t a, double b, int64_t c, float d, uint16_t e) {
	tl_native_calls++;
	return (double)a + b + (double)c + (double)d + (double)e;
}
static int32_t tl_answer(void) { tl_native_calls++; return 42; }
static void tl_noop(void) { tl_native_calls++; }
static size_t tl_strlen(const char* s) { tl_native_calls++; return s ? strlen(s) : 0; }
static int tl_is_null(void* p) { tl_native_calls++; return p == NULL; }

static int32_t tl_sum_i32(const int32_t* xs, int32_t n) {
	tl_native_calls++;
	int32_t s = 0;
	for (int32_t i = 0; i < n; i++) s += xs[i];
	return s;
}
static void tl_fill_i32(int32_t* xs, int32_t n, int32_t v) {
	tl_native_calls++;
	for (int32_t i = 0; i < n; i++) xs[i] = v;
}

// Callback drivers: call f the way a native library would.
typedef int32_t (*tl_i32_fn)(int32_t, int32_t);
typedef uint8_t (*tl_u8_fn)(uint8_t);
typedef double (*tl_dbl_fn)(double);
typedef const char* (*tl_str_fn)(const char*);
typedef void (*tl_void_fn)(int32_t);

static int32_t tl_apply_i32(tl_i32_fn f, int32_t a, int32_t b) { tl_native_calls++; return f(a, b); }
static int32_t tl_apply_n(tl_i32_fn f, int32_t n) {
	tl_native_calls++;
	int32_t s = 0;
	for (int32_t i = 0; i < n; i++) s += f(i, i);
	return s;
}
static uint8_t tl_apply_u8(tl_u8_fn f, uint8_t x) { tl_native_calls++; return f(x); }
static double tl_apply_double(tl_dbl_fn f, double x) { tl_native_calls++; return f(x); }
static const char* tl_apply_str(tl_str_fn f, const char* s) { tl_native_calls++; return f(s); }
static void tl_apply_void(tl_void_fn f, int32_t x) { tl_native_calls++; f(x); }

typedef struct { const char* name; void* fn; } tl_entry;

static const tl_entry tl_table[] = {
	{"id_int8", (void*)tl_id_int8},
	{"id_uint8", (void*)tl_id_uint8},
	{"id_int16", (void*)tl_id_int16},
	{"id_uint16", (void*)tl_id_uint16},
	{"id_int32", (void*)tl_id_int32},
	{"id_uint32", (void*)tl_id_uint32},
	{"id_int64", (void*)tl_id_int64},
	{"id_uint64", (void*)tl_id_uint64},
	{"id_float", (void*)tl_id_float},
	{"id_double", (void*)tl_id_double},
	{"id_longdouble", (void*)tl_id_longdouble},
	{"id_char", (void*)tl_id_char},
	{"id_uchar", (void*)tl_id_uchar},
	{"id_pointer", (void*)tl_id_pointer},
	{"id_string", (void*)tl_id_string},
	{"id_long", (void*)tl_id_long},
	{"id_ulong", (void*)tl_id_ulong},
	{"add_i32", (void*)tl_add_i32},
	{"add_double", (void*)tl_add_double},
	{"mix", (void*)tl_mix},
	{"answer", (void*)tl_answer},
	{"noop", (void*)tl_noop},
	{"strlen", (void*)tl_strlen},
	{"is_null", (void*)tl_is_null},
	{"sum_i32", (void*)tl_sum_i32},
	{"fill_i32", (void*)tl_fill_i32},
	{"apply_i32", (void*)tl_apply_i32},
	{"apply_n", (void*)tl_apply_n},
	{"apply_u8", (void*)tl_apply_u8},
	{"apply_double", (void*)tl_apply_double},
	{"apply_str", (void*)tl_apply_str},
	{"apply_void", (void*)tl_apply_void},
	{NULL, NULL},
};

static uintptr_t tl_lookup(const char* name) {
	for (const tl_entry* e = tl_table; e->name; e++) {
		if (strcmp(e->name, name) == 0) return (uintptr_t)e->fn;
	}
	return 0;
}

static const char* tl_name_at(int i) { return tl_table[i].name; }
static int tl_calls(void) { return tl_native_calls; }
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Lookup returns the address of the named function, or 0.
func Lookup(name string) uintptr {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return uintptr(C.tl_lookup(cs))
}

// MustLookup is Lookup that panics on unknown names.
func MustLookup(name string) uintptr {
	if p := Lookup(name); p != 0 {
		return p
	}
	panic(fmt.Sprintf("testlib: no function %q", name))
}

// Names lists the available functions in table order.
func Names() []string {
	var out []string
	for i := 0; ; i++ {
		n := C.tl_name_at(C.int(i))
		if n == nil {
			return out
		}
		out = append(out, C.GoString(n))
	}
}

// Calls returns how many native functions of this package have run.
func Calls() int { return int(C.tl_calls()) }
