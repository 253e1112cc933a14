package rodhost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/google/uuid"

	"github.com/hazyhaar/imgprobe/imageloaded"
)

// Element is a rod-backed imageloaded.Element.
type Element struct {
	host *Host
	el   *rod.Element
	tag  string
}

// Rod returns the underlying rod element.
func (e *Element) Rod() *rod.Element { return e.el }

func (e *Element) TagName() string { return e.tag }

// Attribute returns the DOM property when it is a string (so "src" is the
// resolved URL), the raw attribute otherwise.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	res, err := e.el.Context(ctx).Eval(`(name) => {
		const v = this[name];
		return typeof v === 'string' ? v : (this.getAttribute(name) || '');
	}`, name)
	if err != nil {
		return "", fmt.Errorf("rodhost: read %s: %w", name, err)
	}
	return res.Value.Str(), nil
}

func (e *Element) InlineStyle(ctx context.Context, property string) (string, error) {
	res, err := e.el.Context(ctx).Eval(`(p) => this.style ? this.style.getPropertyValue(p) : ''`, property)
	if err != nil {
		return "", fmt.Errorf("rodhost: inline style %s: %w", property, err)
	}
	return res.Value.Str(), nil
}

// Image is a rod-backed <img>.
type Image struct {
	*Element
}

var _ imageloaded.Image = (*Image)(nil)

func (i *Image) State(ctx context.Context) (imageloaded.ImageState, error) {
	var st imageloaded.ImageState
	res, err := i.el.Context(ctx).Eval(`() => JSON.stringify({
		complete: this.complete,
		naturalWidth: this.naturalWidth,
		naturalHeight: this.naturalHeight,
		src: this.src,
	})`)
	if err != nil {
		return st, fmt.Errorf("rodhost: image state: %w", err)
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &st); err != nil {
		return st, fmt.Errorf("rodhost: decode image state: %w", err)
	}
	return st, nil
}

const armJS = `(key) => {
	const img = this;
	const pending = img.__imageloaded || (img.__imageloaded = {});
	pending[key] = new Promise((resolve) => {
		img.addEventListener('load', () => resolve(''), {once: true});
		img.addEventListener('error', (e) => resolve((e && e.type) || 'error'), {once: true});
	});
}`

const awaitJS = `(key) => {
	const p = this.__imageloaded[key];
	delete this.__imageloaded[key];
	return p.then((event) => JSON.stringify({event: event, src: this.src}));
}`

// OnLoad arms once-only load/error listeners and awaits them in the
// background until ctx ends.
func (i *Image) OnLoad(ctx context.Context) (<-chan error, error) {
	key := uuid.NewString()
	if _, err := i.el.Context(ctx).Eval(armJS, key); err != nil {
		return nil, fmt.Errorf("rodhost: arm load listeners: %w", err)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		res, err := i.el.Context(ctx).Evaluate(rod.Eval(awaitJS, key).ByPromise())
		if err != nil {
			if ctx.Err() == nil {
				i.host.logger.Warn("rodhost: await load", "error", err)
			}
			return
		}
		var out struct {
			Event string `json:"event"`
			Src   string `json:"src"`
		}
		if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
			i.host.logger.Warn("rodhost: decode load result", "error", err)
			return
		}
		if out.Event != "" {
			ch <- &imageloaded.DecodeError{Src: out.Src, Event: out.Event}
			return
		}
		ch <- nil
	}()
	return ch, nil
}

func (i *Image) SetSource(ctx context.Context, src string) error {
	if _, err := i.el.Context(ctx).Eval(`(src) => { this.src = src; }`, src); err != nil {
		return fmt.Errorf("rodhost: set src: %w", err)
	}
	return nil
}

type rodBacked interface {
	Rod() *rod.Element
}

func unwrap(el imageloaded.Element) (*rod.Element, error) {
	rb, ok := el.(rodBacked)
	if !ok {
		return nil, fmt.Errorf("rodhost: %T is not a rod element", el)
	}
	return rb.Rod(), nil
}
