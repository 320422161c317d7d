package cdp

// bindingName is the page-to-client channel installed via
// Runtime.addBinding.
const bindingName = "__pbEmit"

// bootstrapScript installs the element-handle registry, the mutation
// observer, and the control-event delegation in the page. Installation
// is idempotent; handles are "pb-<n>" ids mapped to live elements.
//
// The write path mirrors what a typing user produces: values are set
// through the native prototype setters so the host framework's change
// tracking notices them, and data-pb-disabled is mirrored onto the real
// disabled property because reconciliation only manages attributes.
const bootstrapScript = `(() => {
  if (window.__pb) return;

  const reg = new Map();
  let seq = 0;
  const idOf = (el) => {
    for (const [id, node] of reg) { if (node === el) return id; }
    const id = "pb-" + (++seq);
    reg.set(id, el);
    return id;
  };
  const get = (id) => reg.get(id) || null;
  const emit = (msg) => { window.` + bindingName + `(JSON.stringify(msg)); };

  const nativeValueSetter = (el) => {
    const proto = el instanceof HTMLTextAreaElement
      ? HTMLTextAreaElement.prototype
      : HTMLInputElement.prototype;
    const desc = Object.getOwnPropertyDescriptor(proto, "value");
    return desc && desc.set ? desc.set : null;
  };

  window.__pb = {
    query: (sel) => Array.from(document.querySelectorAll(sel)).map(idOf),
    within: (id, sel) => {
      const el = get(id);
      return el ? Array.from(el.querySelectorAll(sel)).map(idOf) : [];
    },
    alive: (id) => { const el = get(id); return !!el && el.isConnected; },
    matches: (id, sel) => { const el = get(id); return !!el && el.matches(sel); },
    text: (id) => { const el = get(id); return el ? (el.innerText ?? el.textContent ?? "") : ""; },
    value: (id) => { const el = get(id); return el && "value" in el ? el.value : ""; },
    attr: (id, name) => {
      const el = get(id);
      if (!el || !el.hasAttribute(name)) return null;
      return el.getAttribute(name);
    },
    setValue: (id, v) => {
      const el = get(id);
      if (!el) return false;
      const set = nativeValueSetter(el);
      if (set) { set.call(el, v); } else { el.value = v; }
      return true;
    },
    setHTML: (id, html) => { const el = get(id); if (!el) return false; el.innerHTML = html; return true; },
    setText: (id, t) => { const el = get(id); if (!el) return false; el.textContent = t; return true; },
    setAttr: (id, name, v) => {
      const el = get(id);
      if (!el) return false;
      el.setAttribute(name, v);
      if (name === "data-pb-disabled") el.disabled = v === "true";
      return true;
    },
    dispatch: (id, type) => {
      const el = get(id);
      if (!el) return false;
      if (type === "input") {
        el.dispatchEvent(new InputEvent("input", { bubbles: true }));
      } else if (type === "change") {
        el.dispatchEvent(new Event("change", { bubbles: true }));
      } else if (type === "click") {
        el.click();
      } else if (type === "enter-key") {
        const opts = { key: "Enter", code: "Enter", keyCode: 13, bubbles: true };
        el.dispatchEvent(new KeyboardEvent("keydown", opts));
        el.dispatchEvent(new KeyboardEvent("keyup", opts));
      } else {
        return false;
      }
      return true;
    },
    click: (id) => { const el = get(id); if (!el) return false; el.click(); return true; },
    create: (tag) => idOf(document.createElement(tag)),
    append: (pid, cid) => {
      const p = get(pid), c = get(cid);
      if (!p || !c) return false;
      p.appendChild(c);
      return true;
    },
    insertBefore: (pid, cid, rid) => {
      const p = get(pid), c = get(cid), r = get(rid);
      if (!p || !c || !r) return false;
      p.insertBefore(c, r);
      return true;
    },
    remove: (id) => { const el = get(id); if (!el) return false; el.remove(); return true; },
    parent: (id) => {
      const el = get(id);
      return el && el.parentElement ? idOf(el.parentElement) : null;
    },
  };

  new MutationObserver((records) => {
    const added = [];
    for (const rec of records) {
      for (const node of rec.addedNodes) {
        if (node.nodeType === Node.ELEMENT_NODE) added.push(idOf(node));
      }
    }
    if (added.length) emit({ kind: "mutation", added });
  }).observe(document.body, { childList: true, subtree: true });

  document.addEventListener("click", (e) => {
    const btn = e.target.closest("[data-pb-action]");
    if (!btn || btn.getAttribute("data-pb-disabled") === "true") return;
    const action = btn.getAttribute("data-pb-action");
    let value = "";
    if (action === "preview:confirm") {
      const root = btn.closest("[data-pb-root]");
      const edit = root && root.querySelector('[data-pb-id="preview-text"]');
      if (edit) value = edit.value;
    }
    e.preventDefault();
    e.stopPropagation();
    emit({ kind: "control", action, value });
  }, true);
})();`
