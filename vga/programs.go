package vga

// Code in this file mirrors pioasm output for the three timing programs.
// All three are relocatable and together take 29 of the 32 instruction slots.

// hsync
//
//	pull block
//	.wrap_target
//	mov x, osr
//	activeporch:
//	jmp x-- activeporch [2]
//	set pins, 0 [29]
//	set pins, 1 [29]
//	irq 0
//	.wrap
const (
	hsyncWrapTarget = 1
	hsyncWrap       = 5
	hsyncOrigin     = -1
)

var hsyncInstructions = []uint16{
	0x80a0, //  0: pull   block
	//     .wrap_target
	0xa027, //  1: mov    x, osr
	0x0242, //  2: jmp    x--, 2                 [2]
	0xfd00, //  3: set    pins, 0                [29]
	0xfd01, //  4: set    pins, 1                [29]
	0xc000, //  5: irq    nowait 0
	//     .wrap
}

// vsync
//
//	pull block
//	.wrap_target
//	mov x, osr
//	active:
//	wait 1 irq 0
//	irq 1
//	jmp x-- active
//	set y, 3
//	frontporch:
//	wait 1 irq 0
//	jmp y-- frontporch
//	set pins, 0
//	wait 1 irq 0
//	wait 1 irq 0
//	set pins, 1
//	set y, 13
//	backporch:
//	wait 1 irq 0
//	jmp y-- backporch
//	.wrap
const (
	vsyncWrapTarget = 1
	vsyncWrap       = 14
	vsyncOrigin     = -1
)

var vsyncInstructions = []uint16{
	0x80a0, //  0: pull   block
	//     .wrap_target
	0xa027, //  1: mov    x, osr
	0x20c0, //  2: wait   1 irq, 0
	0xc001, //  3: irq    nowait 1
	0x0042, //  4: jmp    x--, 2
	0xe043, //  5: set    y, 3
	0x20c0, //  6: wait   1 irq, 0
	0x0086, //  7: jmp    y--, 6
	0xe000, //  8: set    pins, 0
	0x20c0, //  9: wait   1 irq, 0
	0x20c0, // 10: wait   1 irq, 0
	0xe001, // 11: set    pins, 1
	0xe04d, // 12: set    y, 13
	0x20c0, // 13: wait   1 irq, 0
	0x008d, // 14: jmp    y--, 13
	//     .wrap
}

// rgb
//
//	.side_set 1
//	pull block side 0
//	mov y, osr side 0
//	.wrap_target
//	mov x, y side 0
//	wait 1 irq 1 side 0
//	colorout:
//	pull block side 0
//	out pins, 3 side 0
//	jmp x-- colorout side 1
//	set pins, 0 side 0
//	.wrap
const (
	rgbWrapTarget = 2
	rgbWrap       = 7
	rgbOrigin     = -1
)

var rgbInstructions = []uint16{
	0x80a0, //  0: pull   block           side 0
	0xa047, //  1: mov    y, osr          side 0
	//     .wrap_target
	0xa022, //  2: mov    x, y            side 0
	0x20c1, //  3: wait   1 irq, 1        side 0
	0x80a0, //  4: pull   block           side 0
	0x6003, //  5: out    pins, 3         side 0
	0x1044, //  6: jmp    x--, 4          side 1
	0xe000, //  7: set    pins, 0         side 0
	//     .wrap
}
