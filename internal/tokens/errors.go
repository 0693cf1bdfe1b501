package tokens

import "errors"

var errTokenizerPanic = errors.New("tokenizer panicked while loading")
