// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package expander reconciles a composite's replacement instances with the
// slots its control state asks for.
//
// Each slot carries a key that identifies it across expansions. An instance
// whose key is still requested is kept untouched, together with every cell
// and every piece of essential state beneath it. New keys are built and
// keys no longer requested are destroyed. Keys are chosen by the caller per
// composite kind: repeat slots by position, map slots by explicit key or
// position, select slots by option and occurrence, conditional slots by
// branch, copy and collect slots by target address.
//
// Hidden and unchosen slots stay built and are only marked inactive.
package expander
